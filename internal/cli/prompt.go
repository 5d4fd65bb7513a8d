package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// promptPassword reads a password without echo when stdin is a terminal.
// Piped input is read as a plain line.
func promptPassword(out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	return readLine(stdinReader())
}

// promptConfirm asks a yes/no question; anything but y/yes is no.
func promptConfirm(in *bufio.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := readLine(in)
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// promptDefault asks for a value, returning def on an empty answer.
func promptDefault(in *bufio.Reader, out io.Writer, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	answer, err := readLine(in)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// asBufioReader wraps r for line reads, sharing the stdin reader.
func asBufioReader(r io.Reader) *bufio.Reader {
	switch v := r.(type) {
	case *bufio.Reader:
		return v
	case *os.File:
		if v == os.Stdin {
			return stdinReader()
		}
	}
	return bufio.NewReader(r)
}

var sharedStdin *bufio.Reader

// stdinReader returns one buffered reader over stdin shared by every prompt,
// so buffered input is not lost between prompts.
func stdinReader() *bufio.Reader {
	if sharedStdin == nil {
		sharedStdin = bufio.NewReader(os.Stdin)
	}
	return sharedStdin
}
