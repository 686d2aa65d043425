package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasjlepore/cycling-analyzer/internal/cfg"
	"github.com/lucasjlepore/cycling-analyzer/internal/store"
	"github.com/lucasjlepore/cycling-analyzer/samplecache"
)

func streamDoc(id int, typ string, watts float64) string {
	var times, power []string
	for i := 0; i < 60; i++ {
		times = append(times, fmt.Sprint(i))
		power = append(power, fmt.Sprint(watts))
	}
	return fmt.Sprintf(`{"activity": {"id": %d, "type": %q, "start_date_local": "2024-06-10T07:00:00Z"},
"streams": {"time": {"data": [%s]}, "watts": {"data": [%s]}}}`,
		id, typ, strings.Join(times, ","), strings.Join(power, ","))
}

func newImporter(t *testing.T) (*Importer, string) {
	t.Helper()
	root := t.TempDir()
	c := cfg.Default()
	c.HistoryDir = filepath.Join(root, "history")
	if err := os.MkdirAll(c.HistoryDir, 0o755); err != nil {
		t.Fatal(err)
	}
	db, err := store.Open(filepath.Join(root, "cycling.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.Migrate(db); err != nil {
		t.Fatal(err)
	}
	samples, err := samplecache.New(filepath.Join(root, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(c, db, samples, logger), c.HistoryDir
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestFileDeduplicatesByContent(t *testing.T) {
	im, dir := newImporter(t)
	path := writeFile(t, dir, "2024-06-10-ride.json", streamDoc(1, "Ride", 200))

	row, err := im.IngestFile(path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if row.ID != "2024-06-10-ride" || row.Day != "2024-06-10" || row.Samples != 60 {
		t.Fatalf("unexpected row: %+v", row)
	}
	if !im.samples.Has(row.ID) {
		t.Fatal("samples were not cached")
	}

	copyPath := writeFile(t, dir, "copy.json", streamDoc(1, "Ride", 200))
	if _, err := im.IngestFile(copyPath); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	writeFile(t, dir, "2024-06-10-ride.json", streamDoc(1, "Ride", 210))
	if _, err := im.IngestFile(path); err != nil {
		t.Fatalf("changed file should re-import: %v", err)
	}
	got, err := im.db.GetWorkout(context.Background(), row.ID)
	if err != nil || got.Fingerprint == row.Fingerprint {
		t.Fatalf("fingerprint not updated: %+v, %v", got, err)
	}
}

func TestScanOnceSummary(t *testing.T) {
	im, dir := newImporter(t)
	writeFile(t, dir, "a.json", streamDoc(1, "Ride", 200))
	writeFile(t, dir, "b.json", streamDoc(1, "Ride", 200))
	writeFile(t, dir, "c.json", streamDoc(2, "Run", 0))
	writeFile(t, dir, "d.tcx", "<TrainingCenterDatabase>")

	sum, err := im.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if sum.FoundFiles != 4 || sum.Imported != 1 || sum.Duplicates != 1 || sum.Skipped != 1 || len(sum.Errors) != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	again, err := im.ScanOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again.Imported != 0 || again.Duplicates != 2 {
		t.Fatalf("rescan should only find duplicates: %+v", again)
	}
}

func TestIngestPendingSummarizesBatch(t *testing.T) {
	im, dir := newImporter(t)
	pending := map[string]struct{}{
		writeFile(t, dir, "a.json", streamDoc(1, "Ride", 200)): {},
		writeFile(t, dir, "b.json", streamDoc(2, "Run", 0)):    {},
		writeFile(t, dir, "c.tcx", "<TrainingCenterDatabase>"): {},
	}
	sum := im.ingestPending(pending)
	if sum.FoundFiles != 3 || sum.Imported != 1 || sum.Skipped != 1 || len(sum.Errors) != 1 {
		t.Fatalf("unexpected batch summary: %+v", sum)
	}
	if len(pending) != 0 {
		t.Fatalf("pending not drained: %v", pending)
	}
}

func TestRunPicksUpNewFiles(t *testing.T) {
	im, dir := newImporter(t)
	im.c.PollMs = 100

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- im.Run(ctx) }()

	writeFile(t, dir, "new.json", streamDoc(3, "VirtualRide", 180))
	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := im.db.GetWorkout(context.Background(), "new"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("new file was not imported")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
