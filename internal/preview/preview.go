// Package preview decides how a file is presented: which previewer handles it,
// which highlighter language applies, and how size and date are shown.
package preview

import (
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/driveindex/drive-index/internal/models"
)

// Kind is the previewer a file is routed to.
type Kind string

const (
	KindFolder   Kind = "folder"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindImage    Kind = "image"
	KindPDF      Kind = "pdf"
	KindMarkdown Kind = "markdown"
	KindNotebook Kind = "notebook"
	KindCode     Kind = "code"
	KindText     Kind = "text"
	KindOther    Kind = "other"
)

var (
	videoExts   = mapset.NewSet("mp4", "mkv", "avi", "mov", "wmv", "flv", "webm", "m4v")
	audioExts   = mapset.NewSet("mp3", "wav", "flac", "aac", "ogg", "m4a", "wma")
	imageExts   = mapset.NewSet("jpg", "jpeg", "png", "gif", "bmp", "svg", "webp", "ico", "tiff")
	archiveExts = mapset.NewSet("zip", "rar", "7z", "tar", "gz", "bz2", "xz")
	textExts    = mapset.NewSet("txt", "md", "markdown", "json", "xml", "yaml", "yml", "csv")
	iconCode    = mapset.NewSet("js", "ts", "jsx", "tsx", "py", "java", "c", "cpp", "cs", "go", "rs", "php", "rb", "swift", "kt")

	codeExts = mapset.NewSet(
		"js", "jsx", "ts", "tsx",
		"py", "c", "cpp", "h", "hpp",
		"java", "cs", "rs", "go", "rb", "php",
		"sh", "bash", "zsh", "ps1",
		"css", "scss", "less", "html", "vue", "svelte",
		"json", "yml", "yaml", "toml", "xml", "ini", "env",
		"sql", "graphql", "gql",
		"dockerfile", "makefile",
		"lua", "perl", "r", "swift", "kt", "kts",
		"dart", "zig", "nim", "elixir", "ex", "exs",
		"bat", "cmd",
	)

	previewableExts = mapset.NewSet(
		"mp4", "webm", "ogg",
		"mp3", "wav", "m4a",
		"jpg", "jpeg", "png", "gif", "webp", "svg",
		"pdf",
		"txt", "md", "json", "js", "ts", "py", "html", "css", "xml", "yaml",
	)
)

// KindOf routes a file to a previewer. MIME prefixes win for media; markdown,
// notebooks and code are recognized by name.
func KindOf(f models.DriveFile) Kind {
	if f.IsFolder() {
		return KindFolder
	}

	mime := f.MimeType
	ext := extension(f.Name)
	switch {
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case mime == "application/pdf":
		return KindPDF
	case ext == "md" || ext == "markdown" || mime == "text/markdown":
		return KindMarkdown
	case ext == "ipynb":
		return KindNotebook
	case IsCodeFile(f.Name):
		return KindCode
	case strings.HasPrefix(mime, "text/") || ext == "txt":
		return KindText
	}
	return KindOther
}

// IsInline reports whether the previewer renders the file body itself, which
// needs a secondary content fetch.
func (k Kind) IsInline() bool {
	switch k {
	case KindMarkdown, KindNotebook, KindCode, KindText:
		return true
	}
	return false
}

// IsPreviewable reports whether a file has any preview beyond metadata.
func IsPreviewable(mimeType, ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if previewableExts.Contains(ext) {
		return true
	}
	return strings.HasPrefix(mimeType, "video/") ||
		strings.HasPrefix(mimeType, "audio/") ||
		strings.HasPrefix(mimeType, "image/") ||
		strings.Contains(mimeType, "pdf")
}

// IsCodeFile reports whether name looks like source code.
func IsCodeFile(name string) bool {
	return codeExts.Contains(extension(name))
}

// LanguageFor returns the highlighter language id for name.
func LanguageFor(name string) string {
	ext := extension(name)
	switch ext {
	case "ts", "tsx":
		return "typescript"
	case "js", "jsx":
		return "javascript"
	case "rs":
		return "rust"
	case "sh", "bash", "zsh", "bat", "cmd":
		return "bash"
	case "cs":
		return "csharp"
	case "py":
		return "python"
	case "rb":
		return "ruby"
	case "yml":
		return "yaml"
	case "kt", "kts":
		return "kotlin"
	case "hpp", "cpp":
		return "cpp"
	case "h":
		return "c"
	case "ex", "exs":
		return "elixir"
	case "gql", "graphql":
		return "graphql"
	case "ps1":
		return "powershell"
	case "env", "ini":
		return "ini"
	}
	return ext
}

var mimeByExt = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	"flv":  "video/x-flv",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"ogg":  "audio/ogg",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"md":   "text/markdown",
	"json": "application/json",
	"js":   "application/javascript",
	"ts":   "application/typescript",
	"html": "text/html",
	"css":  "text/css",
	"zip":  "application/zip",
	"rar":  "application/x-rar-compressed",
	"7z":   "application/x-7z-compressed",
}

// MimeTypeFor guesses a MIME type from a file name, for entries that were
// addressed directly and never listed.
func MimeTypeFor(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		if m, ok := mimeByExt[strings.ToLower(name[i+1:])]; ok {
			return m
		}
	}
	return "application/octet-stream"
}

// Icon names the icon for an entry. Extension mapping is tried before MIME.
func Icon(mimeType, ext string) string {
	if models.KindForMimeType(mimeType) == models.EntryKindFolder {
		return "folder"
	}

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch {
	case ext == "":
	case videoExts.Contains(ext):
		return "film"
	case audioExts.Contains(ext):
		return "music"
	case imageExts.Contains(ext):
		return "image"
	case ext == "pdf":
		return "file-pdf"
	case ext == "doc" || ext == "docx":
		return "file-word"
	case ext == "xls" || ext == "xlsx":
		return "file-excel"
	case ext == "ppt" || ext == "pptx":
		return "file-powerpoint"
	case iconCode.Contains(ext):
		return "file-code"
	case archiveExts.Contains(ext):
		return "file-archive"
	case textExts.Contains(ext):
		return "file-alt"
	}

	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return "film"
	case strings.HasPrefix(mimeType, "audio/"):
		return "music"
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "text/"):
		return "file-alt"
	case strings.Contains(mimeType, "pdf"):
		return "file-pdf"
	case strings.Contains(mimeType, "word"):
		return "file-word"
	case strings.Contains(mimeType, "excel"), strings.Contains(mimeType, "spreadsheet"):
		return "file-excel"
	case strings.Contains(mimeType, "powerpoint"), strings.Contains(mimeType, "presentation"):
		return "file-powerpoint"
	case strings.Contains(mimeType, "zip"), strings.Contains(mimeType, "archive"), strings.Contains(mimeType, "compressed"):
		return "file-archive"
	}
	return "file"
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a decimal byte count with 1024-based units. Empty,
// zero and unparsable input render as "".
func FormatSize(size string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil || n <= 0 {
		return ""
	}

	value := float64(n)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	if unit == 0 {
		return strconv.FormatInt(n, 10) + " B"
	}
	return strconv.FormatFloat(value, 'f', 1, 64) + " " + sizeUnits[unit]
}

// FormatDate renders an RFC 3339 timestamp as "Jan 2, 2006"; invalid input
// renders as "".
func FormatDate(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

// extension returns the lower-cased extension of name, treating Dockerfile,
// Makefile and .env files as their own extensions.
func extension(name string) string {
	lower := strings.ToLower(name)
	switch {
	case lower == "dockerfile":
		return "dockerfile"
	case lower == "makefile":
		return "makefile"
	case lower == ".env" || strings.HasPrefix(lower, ".env."):
		return "env"
	}
	if i := strings.LastIndex(lower, "."); i >= 0 {
		return lower[i+1:]
	}
	return lower
}
