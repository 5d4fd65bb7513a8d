// Package pathcodec maps URL pathnames of the form "/<drive>:<path>" to and
// from drive locations.
//
// All functions are pure. A pathname that does not carry a drive prefix is not
// an error: it addresses the root of drive 0.
package pathcodec

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/driveindex/drive-index/internal/models"
)

// DefaultDrive is the drive used when a pathname carries no usable drive prefix.
const DefaultDrive = 0

// PreviewQuery is appended to file pathnames to request the preview UI
// instead of a raw download.
const PreviewQuery = "?a=view"

var drivePathPattern = regexp.MustCompile(`^/(\d+):(.*)$`)

// Location is a (drive, folder path) pair decoded from a pathname.
type Location struct {
	Drive int
	Path  string
}

// Root returns the root location of the given drive.
func Root(drive int) Location {
	return Location{Drive: drive, Path: "/"}
}

// Pathname encodes the location back into a URL pathname.
func (l Location) Pathname() string {
	return Encode(l.Drive, l.Path)
}

// Folder returns the location with its path normalized to a folder path.
func (l Location) Folder() Location {
	return Location{Drive: l.Drive, Path: NormalizeFolder(l.Path)}
}

// Decode parses a pathname into a Location.
// Pathnames without a "/<digits>:" prefix, or whose drive index does not fit
// in an int, decode to the root of DefaultDrive.
func Decode(pathname string) Location {
	m := drivePathPattern.FindStringSubmatch(pathname)
	if m == nil {
		return Root(DefaultDrive)
	}

	drive, err := strconv.Atoi(m[1])
	if err != nil || drive < 0 {
		return Root(DefaultDrive)
	}

	path := m[2]
	if path == "" {
		path = "/"
	}
	return Location{Drive: drive, Path: path}
}

// Encode builds the "/<drive>:<path>" pathname. The path always gains a
// leading slash.
func Encode(drive int, path string) string {
	if drive < 0 {
		drive = DefaultDrive
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "/" + strconv.Itoa(drive) + ":" + path
}

// IsFilePath reports whether a pathname addresses a single file: it has no
// trailing slash and its final segment contains a dot.
func IsFilePath(pathname string) bool {
	if pathname == "" || strings.HasSuffix(pathname, "/") {
		return false
	}
	return strings.Contains(lastSegment(pathname), ".")
}

// NormalizeFolder returns path with exactly one leading and one trailing slash.
func NormalizeFolder(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}

// ItemPath returns the pathname of an entry listed under base. Folders end in
// a slash; files carry PreviewQuery so they open in preview mode.
func ItemPath(base string, file models.DriveFile) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	p := base + EncodeComponent(file.Name)
	if file.IsFolder() {
		return p + "/"
	}
	return p + PreviewQuery
}

// Parent returns the pathname of the folder containing pathname.
func Parent(pathname string) string {
	loc := Decode(pathname)
	trimmed := strings.TrimSuffix(loc.Path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return Encode(loc.Drive, "/")
	}
	return Encode(loc.Drive, trimmed[:idx+1])
}

// FileName returns the decoded final segment of pathname.
func FileName(pathname string) string {
	seg := lastSegment(strings.TrimSuffix(pathname, "/"))
	if name, err := url.PathUnescape(seg); err == nil {
		return name
	}
	return seg
}

// Crumb is one navigable step of a pathname.
type Crumb struct {
	Name string
	Path string
}

// Breadcrumbs splits a pathname into its folder steps. The first crumb is the
// drive root; each following crumb carries the decoded segment name and the
// re-encoded pathname of that folder.
func Breadcrumbs(pathname string) []Crumb {
	loc := Decode(pathname)
	crumbs := []Crumb{{Name: "/", Path: Encode(loc.Drive, "/")}}

	var built []string
	for _, seg := range strings.Split(loc.Path, "/") {
		if seg == "" {
			continue
		}
		name, err := url.PathUnescape(seg)
		if err != nil {
			name = seg
		}
		built = append(built, EncodeComponent(name))
		crumbs = append(crumbs, Crumb{
			Name: name,
			Path: Encode(loc.Drive, "/"+strings.Join(built, "/")+"/"),
		})
	}
	return crumbs
}

// HasDrive reports whether pathname starts with a "/<digits>:" prefix.
func HasDrive(pathname string) bool {
	return drivePathPattern.MatchString(pathname)
}

// EncodePath component-encodes every segment of a human-typed path. Segments
// that are already percent-encoded are decoded first, so the result is stable
// when applied twice.
func EncodePath(path string) string {
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if seg == "" {
			continue
		}
		if name, err := url.PathUnescape(seg); err == nil {
			seg = name
		}
		segs[i] = EncodeComponent(seg)
	}
	return strings.Join(segs, "/")
}

// SplitFile splits a file pathname into its folder location and decoded file
// name. A trailing query such as PreviewQuery is ignored.
func SplitFile(pathname string) (Location, string) {
	if i := strings.Index(pathname, "?"); i >= 0 {
		pathname = pathname[:i]
	}
	loc := Decode(pathname)
	trimmed := strings.TrimSuffix(loc.Path, "/")
	idx := strings.LastIndex(trimmed, "/")
	name := FileName(trimmed)
	if idx < 0 {
		return Location{Drive: loc.Drive, Path: "/"}, name
	}
	return Location{Drive: loc.Drive, Path: trimmed[:idx+1]}, name
}

// EncodeComponent escapes s the way a browser's encodeURIComponent does:
// everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ) is percent-encoded, and
// spaces become %20.
func EncodeComponent(s string) string {
	escaped := url.QueryEscape(s)
	return componentReplacer.Replace(escaped)
}

var componentReplacer = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
	"%7E", "~",
)

func lastSegment(pathname string) string {
	if i := strings.LastIndex(pathname, "/"); i >= 0 {
		return pathname[i+1:]
	}
	return pathname
}
