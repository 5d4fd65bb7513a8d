package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// DownloadUI manages the progress bars of a batch of concurrent downloads.
// On a non-terminal writer it prints one line per file instead.
type DownloadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalFiles int
	completed  int32
	mu         sync.Mutex
}

// DownloadFileBar is the bar of a single file. It implements Reporter so it
// can be handed straight to the API client.
type DownloadFileBar struct {
	bar        *mpb.Bar
	ui         *DownloadUI
	index      int
	remoteName string
	localPath  string
	size       int64
	startTime  time.Time
	lastUpdate time.Time
	written    int64
}

// NewDownloadUI creates a UI for totalFiles downloads rendering to w.
func NewDownloadUI(w io.Writer, totalFiles int) *DownloadUI {
	isTerminal := false
	if f, ok := w.(*os.File); ok {
		isTerminal = term.IsTerminal(int(f.Fd()))
	}

	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(w),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(60),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &DownloadUI{
		progress:   p,
		out:        w,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar creates the bar for one file. A size of zero or less renders
// an indeterminate bar that completes at whatever was received.
func (u *DownloadUI) AddFileBar(index int, remoteName, localPath string, size int64) *DownloadFileBar {
	fb := &DownloadFileBar{
		ui:         u,
		index:      index,
		remoteName: remoteName,
		localPath:  localPath,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if !u.isTerminal {
		u.println(fmt.Sprintf("Downloading [%d/%d]: %s", index, u.totalFiles, remoteName))
		return fb
	}

	total := size
	if total < 0 {
		total = 0
	}
	label := fmt.Sprintf("[%d/%d] %s", index, u.totalFiles, remoteName)
	fb.bar = u.progress.New(total,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.OnComplete(decor.Percentage(decor.WCSyncSpace), "done"),
			decor.Name("  "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
		),
		mpb.BarRemoveOnComplete(),
	)
	return fb
}

// Start adopts the server-reported length when the listing had no size.
func (f *DownloadFileBar) Start(total int64, description string) {
	if f.bar != nil && f.size <= 0 && total > 0 {
		f.size = total
		f.bar.SetTotal(total, false)
	}
}

// Update moves the bar to current bytes, throttled to the refresh rate.
func (f *DownloadFileBar) Update(current int64) {
	atomic.StoreInt64(&f.written, current)
	if f.bar == nil {
		return
	}
	now := time.Now()
	if elapsed := now.Sub(f.lastUpdate); elapsed >= 300*time.Millisecond {
		f.bar.EwmaSetCurrent(current, elapsed)
		f.lastUpdate = now
	}
}

// Finish is a no-op; Complete settles the bar.
func (f *DownloadFileBar) Finish() {}

// Error is a no-op; Complete reports the failure.
func (f *DownloadFileBar) Error(err error) {}

// SetDescription is a no-op.
func (f *DownloadFileBar) SetDescription(desc string) {}

// Complete settles the bar and prints a summary line above the bars.
func (f *DownloadFileBar) Complete(err error) {
	written := atomic.LoadInt64(&f.written)
	dest := shortPath(f.localPath)

	var msg string
	if err == nil {
		if f.bar != nil {
			f.bar.SetTotal(-1, true)
		}
		elapsed := time.Since(f.startTime)
		speed := float64(written) / elapsed.Seconds() / (1024 * 1024)
		msg = fmt.Sprintf("✓ %s → %s (%.1f MiB, %s, %.1f MiB/s)",
			f.remoteName, dest, float64(written)/(1024*1024), elapsed.Round(time.Second), speed)
	} else {
		if f.bar != nil {
			f.bar.Abort(false)
		}
		msg = fmt.Sprintf("✗ %s → %s: %v", f.remoteName, dest, err)
	}

	f.ui.println(msg)
	atomic.AddInt32(&f.ui.completed, 1)
}

// Wait blocks until every bar has completed or aborted.
func (u *DownloadUI) Wait() {
	u.progress.Wait()
}

// LogWriter returns a writer that prints above the bars.
func (u *DownloadUI) LogWriter() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

func (u *DownloadUI) println(line string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintln(u.LogWriter(), line)
}

// Completed returns how many files have settled.
func (u *DownloadUI) Completed() int {
	return int(atomic.LoadInt32(&u.completed))
}

// IsTerminal reports whether bars are rendered.
func (u *DownloadUI) IsTerminal() bool {
	return u.isTerminal
}

// shortPath keeps the last two path components.
func shortPath(p string) string {
	dir, file := filepath.Split(filepath.Clean(p))
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) || parent == "" {
		return file
	}
	return filepath.Join(parent, file)
}
