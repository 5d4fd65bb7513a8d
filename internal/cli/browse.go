package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/driveindex/drive-index/internal/api"
	"github.com/driveindex/drive-index/internal/events"
	"github.com/driveindex/drive-index/internal/models"
	"github.com/driveindex/drive-index/internal/pathcodec"
	"github.com/driveindex/drive-index/internal/prefs"
	"github.com/driveindex/drive-index/internal/preview"
	"github.com/driveindex/drive-index/internal/state"
	"github.com/driveindex/drive-index/internal/transfer"
)

// errQuit ends the browse loop.
var errQuit = errors.New("quit")

const browseHelp = `Commands:
  ls                     List the current folder
  cd <name|..|/d:path>   Change folder
  more                   Load the next page
  sort                   Toggle folders-first natural ordering
  search <query>         Search the current drive (empty query clears)
  results [n]            Show the latest search results, or details of result n
  open <n>               Go to the folder of search result n
  cat <name>             Show details and, for text, contents
  url <name>             Print the download link
  get <name> [dest]      Download a file
  getsel [dir]           Download the selected files in parallel
  rename <name> <new>    Rename an entry
  rm <name>              Delete an entry
  select <name>          Toggle selection of an entry
  selected               List selected entries
  drive <n>              Switch to the root of drive n
  layout <list|grid>     Change and save the listing layout
  pwd                    Print the current pathname
  help                   Show this help
  quit                   Leave`

// newBrowseCmd creates the 'browse' command.
func newBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse [pathname]",
		Short: "Browse interactively",
		Long: `Open an interactive shell on a folder.

` + browseHelp,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}

			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}

			b := newBrowser(sess, stdinReader(), cmd.OutOrStdout())
			defer b.Close()
			return b.Run(GetContext(), resolveLocation(arg, sess.cfg.DefaultDrive))
		},
	}
	return cmd
}

// browser is the interactive shell state.
type browser struct {
	sess   *session
	bus    *events.EventBus
	ctrl   *state.ListingController
	search *state.SearchSession
	in     *bufio.Reader
	out    io.Writer
	sorted bool
	done   chan struct{}
}

func newBrowser(sess *session, in *bufio.Reader, out io.Writer) *browser {
	bus := events.NewEventBus(0)
	b := &browser{
		sess:   sess,
		bus:    bus,
		ctrl:   state.NewListingController(sess.client, bus, state.OptionsFromConfig(sess.cfg, GetLogger())),
		search: state.NewSearchSession(sess.client, bus, sess.cfg.DefaultDrive, sess.cfg.SearchDebounce, GetLogger()),
		in:     in,
		out:    &lockedWriter{w: out},
		done:   make(chan struct{}),
	}

	failures := bus.Subscribe(events.EventMutationFailed)
	results := bus.Subscribe(events.EventSearchResults)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reportMutationFailures(b.out, failures)
	}()
	go func() {
		defer wg.Done()
		b.reportSearchResults(results)
	}()
	go func() {
		wg.Wait()
		close(b.done)
	}()

	return b
}

// lockedWriter serializes writes from the shell loop and event printers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Close stops background work and waits for the event printers to drain.
func (b *browser) Close() {
	b.search.Close()
	b.ctrl.Close()
	b.bus.Close()
	<-b.done
}

// Run opens loc and reads commands until quit or end of input.
func (b *browser) Run(ctx context.Context, loc pathcodec.Location) error {
	if err := b.open(ctx, loc); err != nil {
		printError(b.out, "%v", err)
	} else {
		b.list()
	}

	for {
		fmt.Fprintf(b.out, "%s> ", b.ctrl.Location().Pathname())
		line, err := b.in.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				fmt.Fprintln(b.out)
				return nil
			}
			return err
		}

		if err := b.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			printError(b.out, "%v", err)
		}
	}
}

// exec runs one command line.
func (b *browser) exec(ctx context.Context, line string) error {
	args := splitArgs(line)
	if len(args) == 0 {
		return nil
	}

	cmd, rest := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprintln(b.out, browseHelp)
	case "quit", "exit", "q":
		return errQuit
	case "pwd":
		fmt.Fprintln(b.out, b.ctrl.Location().Pathname())
	case "ls", "l":
		b.list()
	case "more", "m":
		if err := b.ctrl.LoadMore(ctx); err != nil {
			return err
		}
		b.list()
	case "sort":
		b.sorted = !b.sorted
		b.list()
	case "cd":
		if len(rest) != 1 {
			return fmt.Errorf("usage: cd <name|..|/d:path>")
		}
		if err := b.open(ctx, b.target(rest[0])); err != nil {
			return err
		}
		b.list()
	case "drive":
		if len(rest) != 1 {
			return fmt.Errorf("usage: drive <n>")
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid drive %q", rest[0])
		}
		if err := b.open(ctx, pathcodec.Root(n)); err != nil {
			return err
		}
		b.list()
	case "search", "find":
		b.search.Submit(strings.Join(rest, " "))
	case "results":
		if len(rest) == 0 {
			b.printResults(b.search.Results())
			return nil
		}
		f, err := b.result(rest)
		if err != nil {
			return err
		}
		renderFileInfo(b.out, f, b.resultLink(f))
	case "open":
		f, err := b.result(rest)
		if err != nil {
			return err
		}
		loc, ok := resultLocation(f)
		if !ok {
			return fmt.Errorf("%s has no folder link", f.Name)
		}
		if err := b.open(ctx, loc); err != nil {
			return err
		}
		b.list()
	case "cat", "info":
		f, err := b.entry(ctx, rest)
		if err != nil {
			return err
		}
		return showPreview(b.out, b.sess, b.ctrl.Location(), f, 0)
	case "url":
		f, err := b.entry(ctx, rest)
		if err != nil {
			return err
		}
		loc := b.ctrl.Location()
		fmt.Fprintln(b.out, b.sess.client.AbsoluteURL(api.DownloadURL(loc.Drive, loc.Path, f.Name)))
	case "get":
		if len(rest) == 0 || len(rest) > 2 {
			return fmt.Errorf("usage: get <name> [dest]")
		}
		return b.download(ctx, rest)
	case "getsel":
		if len(rest) > 1 {
			return fmt.Errorf("usage: getsel [dir]")
		}
		dir := "."
		if len(rest) == 1 {
			dir = rest[0]
		}
		return b.downloadSelected(ctx, dir)
	case "rename", "mv":
		if !b.sess.cfg.EnableRename {
			return fmt.Errorf("rename: %w", ErrFeatureDisabled)
		}
		if len(rest) != 2 {
			return fmt.Errorf("usage: rename <name> <new-name>")
		}
		f, err := b.entry(ctx, rest[:1])
		if err != nil {
			return err
		}
		if err := b.ctrl.Rename(ctx, b.sess.client, f.ID, rest[1]); err != nil {
			return err
		}
		fmt.Fprintf(b.out, "✓ Renamed %s to %s\n", f.Name, rest[1])
	case "rm", "del":
		if !b.sess.cfg.EnableDelete {
			return fmt.Errorf("delete: %w", ErrFeatureDisabled)
		}
		f, err := b.entry(ctx, rest)
		if err != nil {
			return err
		}
		ok, err := promptConfirm(b.in, b.out, fmt.Sprintf("Delete %s?", displayName(f)))
		if err != nil || !ok {
			return err
		}
		if err := b.ctrl.Delete(ctx, b.sess.client, f.ID); err != nil {
			return err
		}
		fmt.Fprintf(b.out, "✓ Deleted %s\n", displayName(f))
	case "select", "sel":
		f, err := b.entry(ctx, rest)
		if err != nil {
			return err
		}
		b.ctrl.ToggleSelect(f.ID)
	case "selected":
		for _, id := range b.ctrl.Selected() {
			if f, ok := b.ctrl.FindByID(id); ok {
				fmt.Fprintln(b.out, displayName(f))
			}
		}
	case "layout":
		if len(rest) != 1 {
			fmt.Fprintln(b.out, b.sess.prefs.Layout())
			return nil
		}
		l, err := prefs.ParseLayout(rest[0])
		if err != nil {
			return err
		}
		return b.sess.prefs.SetLayout(l)
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

// open navigates to loc, prompting for a password when needed. Searches
// follow the drive of the listing.
func (b *browser) open(ctx context.Context, loc pathcodec.Location) error {
	if loc.Drive != b.search.Drive() {
		b.search.SetDrive(loc.Drive)
	}
	return openFolder(ctx, b.out, b.sess.prefs, b.ctrl, loc)
}

// result returns the search result numbered by args[0], counting from 1.
func (b *browser) result(args []string) (models.DriveFile, error) {
	if len(args) != 1 {
		return models.DriveFile{}, fmt.Errorf("expected one result number")
	}
	files := b.search.Results().Files
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(files) {
		return models.DriveFile{}, fmt.Errorf("no search result %q", args[0])
	}
	return files[n-1], nil
}

// resultLink returns the absolute link of a search result, if it has one.
func (b *browser) resultLink(f models.DriveFile) string {
	if strings.HasPrefix(f.Link, "/") {
		return b.sess.client.AbsoluteURL(f.Link)
	}
	return f.Link
}

// resultLocation maps a search result link onto the folder to open: the
// folder itself, or the folder holding a file.
func resultLocation(f models.DriveFile) (pathcodec.Location, bool) {
	link := f.Link
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		link = u.EscapedPath()
	}
	if !pathcodec.HasDrive(link) {
		return pathcodec.Location{}, false
	}
	if f.IsFolder() {
		return resolveLocation(link, 0), true
	}
	loc, _ := pathcodec.SplitFile(link)
	loc.Path = pathcodec.EncodePath(loc.Path)
	return loc, true
}

// target resolves a cd argument against the current location.
func (b *browser) target(arg string) pathcodec.Location {
	cur := b.ctrl.Location()
	switch {
	case arg == "..":
		return pathcodec.Decode(pathcodec.Parent(cur.Pathname()))
	case arg == "/":
		return pathcodec.Root(cur.Drive)
	case pathcodec.HasDrive(arg):
		return resolveLocation(arg, cur.Drive)
	case strings.HasPrefix(arg, "/"):
		return resolveLocation(arg, cur.Drive)
	}
	return resolveLocation(cur.Path+pathcodec.EncodePath(strings.TrimSuffix(arg, "/")), cur.Drive)
}

// entry finds the single named entry in the current folder.
func (b *browser) entry(ctx context.Context, args []string) (models.DriveFile, error) {
	if len(args) != 1 {
		return models.DriveFile{}, fmt.Errorf("expected one name")
	}
	name := strings.TrimSuffix(args[0], "/")
	f, found, err := findEntry(ctx, b.ctrl, name)
	if err != nil {
		return models.DriveFile{}, err
	}
	if !found {
		return models.DriveFile{}, fmt.Errorf("%s: not found", name)
	}
	return f, nil
}

func (b *browser) download(ctx context.Context, args []string) error {
	f, err := b.entry(ctx, args[:1])
	if err != nil {
		return err
	}
	if f.IsFolder() {
		return fmt.Errorf("%s is a folder", f.Name)
	}

	target := transfer.LocalName(f.Name)
	if len(args) == 2 {
		target = args[1]
	}
	if err := checkSpace(target, f); err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	loc := b.ctrl.Location()
	n, err := b.sess.client.Download(ctx, loc.Drive, loc.Path, f.Name, out, nil)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(target)
		return err
	}
	fmt.Fprintf(b.out, "✓ Downloaded %s (%s) to %s\n", f.Name, sizeLabel(n), target)
	return nil
}

// downloadSelected fetches every selected file of the current folder into dir.
func (b *browser) downloadSelected(ctx context.Context, dir string) error {
	ids := b.ctrl.Selected()
	if len(ids) == 0 {
		return fmt.Errorf("nothing selected")
	}

	loc := b.ctrl.Location()
	reqs := make([]transfer.Request, 0, len(ids))
	for _, id := range ids {
		f, ok := b.ctrl.FindByID(id)
		if !ok || f.IsFolder() {
			continue
		}
		reqs = append(reqs, downloadRequest(loc, f, dir))
	}
	return runDownloads(ctx, b.sess, b.out, b.out, reqs, b.sess.cfg.ParallelDownloads)
}

func (b *browser) list() {
	view, err := viewFromPrefs(b.sess.prefs, "", false, false)
	if err != nil {
		view = listingView{}
	}

	snap := b.ctrl.Snapshot()
	files := snap.Files
	if b.sorted {
		files = b.ctrl.Sorted()
	}
	renderFiles(b.out, files, view)
	if snap.HasMore() {
		fmt.Fprintln(b.out, dimStyle.Render(fmt.Sprintf("%d entries, more available (more)", len(files))))
	}
}

func (b *browser) printResults(res state.SearchSnapshot) {
	if res.Query == "" {
		return
	}
	if res.Err != nil {
		printError(b.out, "search %q failed: %v", res.Query, res.Err)
		return
	}
	fmt.Fprintf(b.out, "\nResults for %q:\n", res.Query)
	if len(res.Files) == 0 {
		fmt.Fprintln(b.out, dimStyle.Render("(no matches)"))
		return
	}
	for i, f := range res.Files {
		fmt.Fprintf(b.out, "%3d  %s\t%s\n", i+1, displayName(f), preview.FormatSize(f.Size))
	}
}

// reportSearchResults prints each settled search until the channel closes.
func (b *browser) reportSearchResults(ch <-chan events.Event) {
	for ev := range ch {
		if _, ok := ev.(*events.SearchResultsEvent); ok {
			b.printResults(b.search.Results())
		}
	}
}

// splitArgs splits a command line on spaces, honoring double and single quotes.
func splitArgs(line string) []string {
	var args []string
	var cur strings.Builder
	var quote rune
	inArg := false

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args
}
