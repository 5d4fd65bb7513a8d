package transfer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Characters that are invisible or cannot appear in a local file name on
// at least one supported platform.
var (
	invisibleChars = []string{
		"\u200B", // zero-width space
		"\u200C", // zero-width non-joiner
		"\u200D", // zero-width joiner
		"\uFEFF", // BOM
		"\u00AD", // soft hyphen
		"\u2060", // word joiner
	}
	reservedReplacer = strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
)

// LocalName turns a drive file name into a safe local file name. Drive
// names may contain characters that are reserved on Windows, or be "." and
// "..".
func LocalName(name string) string {
	for _, c := range invisibleChars {
		name = strings.ReplaceAll(name, c, "")
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = reservedReplacer.Replace(name)
	name = strings.TrimRight(strings.TrimSpace(name), ".")

	if name == "" {
		return "download"
	}
	return name
}

// ResolveCollisions makes every Target in reqs unique. Requests sharing a
// target get the file ID (or their position when there is none) inserted
// before the extension: two "output.zip" become "output_ABC.zip" and
// "output_DEF.zip". It returns how many requests were renamed.
func ResolveCollisions(reqs []Request) int {
	byTarget := make(map[string][]int)
	for i, r := range reqs {
		byTarget[r.Target] = append(byTarget[r.Target], i)
	}

	renamed := 0
	for target, indices := range byTarget {
		if len(indices) <= 1 {
			continue
		}
		ext := filepath.Ext(target)
		base := strings.TrimSuffix(target, ext)
		for n, idx := range indices {
			suffix := reqs[idx].FileID
			if suffix == "" {
				suffix = fmt.Sprintf("%d", n+1)
			}
			reqs[idx].Target = fmt.Sprintf("%s_%s%s", base, LocalName(suffix), ext)
			renamed++
		}
	}
	return renamed
}
