package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/driveindex/drive-index/internal/diskspace"
	"github.com/driveindex/drive-index/internal/logging"
	"github.com/driveindex/drive-index/internal/progress"
)

// Downloader streams one file from a drive into w.
type Downloader interface {
	Download(ctx context.Context, drive int, path, filename string, w io.Writer, reporter progress.Reporter) (int64, error)
}

// Manager runs batches of downloads with a bounded number in flight.
type Manager struct {
	downloader Downloader
	queue      *Queue
	parallel   int
	logger     *logging.Logger
}

// NewManager creates a manager running at most parallel downloads at once.
func NewManager(downloader Downloader, queue *Queue, parallel int, logger *logging.Logger) *Manager {
	if parallel < 1 {
		parallel = 1
	}
	if queue == nil {
		queue = NewQueue(nil)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Manager{
		downloader: downloader,
		queue:      queue,
		parallel:   parallel,
		logger:     logger,
	}
}

// Queue returns the tracker the manager reports to.
func (m *Manager) Queue() *Queue {
	return m.queue
}

// Run downloads every request and returns the settled tasks in request
// order. Individual failures do not stop the batch; cancelling ctx cancels
// everything still queued or active. ui may be nil.
func (m *Manager) Run(ctx context.Context, reqs []Request, ui *progress.DownloadUI) []Task {
	ids := make([]string, len(reqs))
	for i, req := range reqs {
		ids[i] = m.queue.Track(req).ID
	}

	slots := make(chan struct{}, m.parallel)
	var wg sync.WaitGroup

	for i, req := range reqs {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			for _, id := range ids[i:] {
				_ = m.queue.Cancel(id)
			}
			wg.Wait()
			return m.collect(ids)
		}

		wg.Add(1)
		go func(index int, id string, req Request) {
			defer wg.Done()
			defer func() { <-slots }()
			m.runOne(ctx, index, id, req, ui)
		}(i+1, ids[i], req)
	}

	wg.Wait()
	return m.collect(ids)
}

func (m *Manager) runOne(ctx context.Context, index int, id string, req Request, ui *progress.DownloadUI) {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !m.queue.Activate(id, cancel) {
		return
	}

	var bar *progress.DownloadFileBar
	var reporter progress.Reporter = progress.NewNoOpProgress()
	if ui != nil {
		bar = ui.AddFileBar(index, req.Name, req.Target, req.Size)
		reporter = bar
	}

	n, err := m.fetch(taskCtx, id, req, reporter)
	if bar != nil {
		bar.Complete(err)
	}

	switch {
	case err == nil:
		m.queue.Complete(id, n)
		m.logger.Debug().Str("file", req.Name).Int64("bytes", n).Msg("download complete")
	case taskCtx.Err() != nil:
		_ = m.queue.Cancel(id)
	default:
		m.queue.Fail(id, n, err)
		m.logger.Debug().Err(err).Str("file", req.Name).Msg("download failed")
	}
}

// fetch writes one file to its target, removing the partial file on error.
func (m *Manager) fetch(ctx context.Context, id string, req Request, reporter progress.Reporter) (int64, error) {
	if err := diskspace.Check(req.Target, req.Size, diskspace.DefaultMargin); err != nil {
		return 0, err
	}

	f, err := os.Create(req.Target)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", req.Target, err)
	}

	tracked := &queueReporter{Reporter: reporter, queue: m.queue, id: id}
	n, err := m.downloader.Download(ctx, req.Drive, req.Folder, req.Name, f, tracked)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(req.Target)
		return n, err
	}
	return n, nil
}

func (m *Manager) collect(ids []string) []Task {
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		if task, ok := m.queue.Task(id); ok {
			out = append(out, task)
		}
	}
	return out
}

// queueReporter mirrors byte progress into the queue.
type queueReporter struct {
	progress.Reporter
	queue *Queue
	id    string
}

func (r *queueReporter) Update(current int64) {
	r.queue.UpdateProgress(r.id, current)
	r.Reporter.Update(current)
}
