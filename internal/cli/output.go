package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/driveindex/drive-index/internal/models"
	"github.com/driveindex/drive-index/internal/preview"
	"github.com/driveindex/drive-index/internal/prefs"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF80"))
	folderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4A90E2"))
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// listingView controls how a page of files is printed.
type listingView struct {
	Layout       prefs.Layout
	ShowModified bool
	ShowIDs      bool
	Plain        bool // tab-separated, no styling
	GridColumns  int
}

// displayName appends a slash to folder names.
func displayName(f models.DriveFile) string {
	if f.IsFolder() {
		return f.Name + "/"
	}
	return f.Name
}

// renderFiles prints files in the requested view.
func renderFiles(w io.Writer, files []models.DriveFile, view listingView) {
	if len(files) == 0 {
		if !view.Plain {
			fmt.Fprintln(w, dimStyle.Render("(empty)"))
		}
		return
	}

	switch {
	case view.Plain:
		renderPlain(w, files, view)
	case view.Layout == prefs.LayoutGrid:
		renderGrid(w, files, view)
	default:
		renderTable(w, files, view)
	}
}

func renderPlain(w io.Writer, files []models.DriveFile, view listingView) {
	for _, f := range files {
		cols := []string{displayName(f), preview.FormatSize(f.Size)}
		if view.ShowModified {
			cols = append(cols, preview.FormatDate(f.ModifiedTime))
		}
		if view.ShowIDs {
			cols = append(cols, f.ID)
		}
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
}

func renderTable(w io.Writer, files []models.DriveFile, view listingView) {
	headers := []string{"Name", "Kind", "Size"}
	if view.ShowModified {
		headers = append(headers, "Modified")
	}
	if view.ShowIDs {
		headers = append(headers, "ID")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.PaddingRight(2)
			}
			if col == 0 && row >= 0 && row < len(files) && files[row].IsFolder() {
				return folderStyle.PaddingRight(2)
			}
			return cellStyle
		})

	for _, f := range files {
		row := []string{displayName(f), string(preview.KindOf(f)), preview.FormatSize(f.Size)}
		if view.ShowModified {
			row = append(row, preview.FormatDate(f.ModifiedTime))
		}
		if view.ShowIDs {
			row = append(row, f.ID)
		}
		t.Row(row...)
	}

	fmt.Fprintln(w, t.Render())
}

func renderGrid(w io.Writer, files []models.DriveFile, view listingView) {
	columns := view.GridColumns
	if columns <= 0 {
		columns = 4
	}

	width := 0
	for _, f := range files {
		if n := lipgloss.Width(displayName(f)); n > width {
			width = n
		}
	}
	cell := lipgloss.NewStyle().Width(width + 2)

	for start := 0; start < len(files); start += columns {
		end := start + columns
		if end > len(files) {
			end = len(files)
		}
		cells := make([]string, 0, columns)
		for _, f := range files[start:end] {
			style := cell
			if f.IsFolder() {
				style = style.Inherit(folderStyle)
			}
			cells = append(cells, style.Render(displayName(f)))
		}
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
}

// renderFileInfo prints the metadata block shown for a single file.
func renderFileInfo(w io.Writer, f models.DriveFile, link string) {
	fmt.Fprintln(w, headerStyle.Render(f.Name))
	fmt.Fprintf(w, "  Kind:     %s\n", preview.KindOf(f))
	if size := preview.FormatSize(f.Size); size != "" {
		fmt.Fprintf(w, "  Size:     %s\n", size)
	}
	if mod := preview.FormatDate(f.ModifiedTime); mod != "" {
		fmt.Fprintf(w, "  Modified: %s\n", mod)
	}
	if f.MimeType != "" {
		fmt.Fprintf(w, "  Type:     %s\n", f.MimeType)
	}
	if f.Resolved() {
		fmt.Fprintf(w, "  ID:       %s\n", f.ID)
	}
	if link != "" {
		fmt.Fprintf(w, "  Link:     %s\n", link)
	}
}

// sizeLabel formats a byte count, including zero.
func sizeLabel(n int64) string {
	if s := preview.FormatSize(strconv.FormatInt(n, 10)); s != "" {
		return s
	}
	return "0 B"
}

// printWarning writes a styled warning line.
func printWarning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf(format, args...)))
}

// printError writes a styled error line.
func printError(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf(format, args...)))
}
