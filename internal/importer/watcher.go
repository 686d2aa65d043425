package importer

import (
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lucasjlepore/cycling-analyzer/ingest"
)

// settle is how long a file must stay quiet before it is ingested, so
// partially copied files are not parsed.
const settle = 750 * time.Millisecond

// Run scans the history directory once, then follows it with a filesystem
// watcher and, when poll_ms > 0, a periodic rescan. It returns when ctx is done.
func (im *Importer) Run(ctx context.Context) error {
	if _, err := im.ScanOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		im.log.Warn("initial scan failed", "err", err)
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if im.c.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer w.Close()
		if err := w.Add(im.c.HistoryDir); err != nil {
			im.log.Warn("watch history dir failed", "dir", im.c.HistoryDir, "err", err)
		} else {
			im.log.Info("watching history dir", "dir", im.c.HistoryDir)
			events, errs = w.Events, w.Errors
		}
	}

	var tick <-chan time.Time
	if im.c.PollMs > 0 {
		t := time.NewTicker(time.Duration(im.c.PollMs) * time.Millisecond)
		defer t.Stop()
		tick = t.C
		im.log.Info("polling history dir", "every_ms", im.c.PollMs)
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if _, err := ingest.DetectFormat(ev.Name); err != nil {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(settle)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			im.log.Warn("watcher error", "err", err)
		case <-timer.C:
			im.ingestPending(pending)
		case <-tick:
			_, _ = im.ScanOnce(ctx)
		}
	}
}

// ingestPending imports the settled files of one watch batch and empties
// pending.
func (im *Importer) ingestPending(pending map[string]struct{}) ScanSummary {
	sum := ScanSummary{Dir: im.c.HistoryDir, FoundFiles: len(pending)}
	for path := range pending {
		_, err := im.IngestFile(path)
		if err != nil && !errors.Is(err, ErrDuplicate) {
			im.log.Warn("ingest failed", "file", path, "err", err)
		}
		sum.add(path, err)
		delete(pending, path)
	}
	im.log.Info("watch batch finished", "files", sum.FoundFiles, "imported", sum.Imported,
		"duplicates", sum.Duplicates, "skipped", sum.Skipped, "errors", len(sum.Errors))
	return sum
}
