// Package progress aggregates transfer events into run statistics. A
// single goroutine owns every counter; workers only send events, so no
// counter is ever mutated from two places.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"buckethop/pkg/models"
	"buckethop/pkg/s3url"
)

const (
	rateWindowSpan     = 10 * time.Second
	rateWindowCapacity = 1024
	eventBuffer        = 1024
)

// Snapshot is a point-in-time view of a running transfer.
type Snapshot struct {
	BytesDone        int64
	BytesTotal       int64
	FilesDone        int64
	FilesTotal       int64
	FilesTransferred int64
	FilesSkipped     int64
	FilesFailed      int64
	Elapsed          time.Duration
	Rate             float64 // bytes per second
	ETA              time.Duration
	ETAKnown         bool
}

// Tracker ingests ProgressEvents and exposes non-blocking snapshots plus
// the final RunSummary. Events are accumulated additively: a burst of
// small completions between two snapshot reads is fully reflected.
type Tracker struct {
	events chan models.ProgressEvent
	done   chan struct{}

	mu           sync.Mutex
	start        time.Time
	bytesDone    int64
	skippedBytes int64
	failedBytes  int64
	window       *rateWindow
	summary      models.RunSummary
}

// NewTracker creates a tracker for a run with known totals and starts its
// aggregator goroutine.
func NewTracker(totalObjects, totalBytes int64) *Tracker {
	t := &Tracker{
		events: make(chan models.ProgressEvent, eventBuffer),
		done:   make(chan struct{}),
		start:  time.Now(),
		window: newRateWindow(rateWindowSpan, rateWindowCapacity),
		summary: models.RunSummary{
			TotalObjects: totalObjects,
			TotalBytes:   totalBytes,
			Extensions:   make(map[string]models.ExtensionStat),
			StartTime:    time.Now(),
		},
	}
	go t.run()
	return t
}

// Record sends an event to the aggregator. Safe for concurrent use by any
// number of workers.
func (t *Tracker) Record(ev models.ProgressEvent) {
	t.events <- ev
}

func (t *Tracker) run() {
	defer close(t.done)

	for ev := range t.events {
		t.mu.Lock()
		switch ev.Kind {
		case models.EventChunkCopied:
			t.bytesDone += ev.BytesDelta
			t.summary.TotalBytesTransferred += ev.BytesDelta
			t.window.add(time.Now(), ev.BytesDelta)

		case models.EventObjectCompleted:
			t.summary.FilesTransferred++
			t.addExtension(ev.Key, ev.Size)

		case models.EventObjectSkipped:
			t.summary.FilesSkipped++
			t.summary.SkippedBytes += ev.Size
			t.skippedBytes += ev.Size
			t.addExtension(ev.Key, ev.Size)

		case models.EventObjectFailed:
			t.summary.FilesFailed++
			t.failedBytes += ev.Size
			record := models.FailureRecord{Key: ev.Key}
			if ev.Err != nil {
				record.Error = ev.Err.Error()
			}
			t.summary.Failures = append(t.summary.Failures, record)
		}
		t.mu.Unlock()
	}
}

func (t *Tracker) addExtension(key string, size int64) {
	ext := s3url.Extension(key)
	stat := t.summary.Extensions[ext]
	stat.Count++
	stat.Bytes += size
	t.summary.Extensions[ext] = stat
}

// Snapshot returns the current statistics. Reflects every event ingested
// so far; events still in the channel appear in a later snapshot.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	s := Snapshot{
		BytesDone:        t.bytesDone,
		BytesTotal:       t.summary.TotalBytes,
		FilesTransferred: t.summary.FilesTransferred,
		FilesSkipped:     t.summary.FilesSkipped,
		FilesFailed:      t.summary.FilesFailed,
		FilesTotal:       t.summary.TotalObjects,
		Elapsed:          now.Sub(t.start),
		Rate:             t.window.rate(now),
	}
	s.FilesDone = s.FilesTransferred + s.FilesSkipped + s.FilesFailed

	remaining := t.summary.TotalBytes - t.bytesDone - t.skippedBytes - t.failedBytes
	if remaining > 0 && s.Rate > 0 {
		s.ETA = time.Duration(float64(remaining) / s.Rate * float64(time.Second))
		s.ETAKnown = true
	}
	return s
}

// FormatProgress renders a one-line textual snapshot for terminal output.
func (t *Tracker) FormatProgress() string {
	s := t.Snapshot()

	eta := "calculating..."
	if s.ETAKnown {
		eta = s.ETA.Round(time.Second).String()
	}

	return fmt.Sprintf("\r%d/%d objects | %s/%s | %s/s | ETA: %s | failed: %d",
		s.FilesDone,
		s.FilesTotal,
		humanize.Bytes(uint64(s.BytesDone)),
		humanize.Bytes(uint64(s.BytesTotal)),
		humanize.Bytes(uint64(s.Rate)),
		eta,
		s.FilesFailed,
	)
}

// Close stops ingestion and waits for queued events to be absorbed. Call
// once all workers have finished sending.
func (t *Tracker) Close() {
	close(t.events)
	<-t.done
}

// Summary finalizes and returns the run accounting. Call after Close.
func (t *Tracker) Summary(state models.RunState) models.RunSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := t.summary
	summary.State = state
	summary.EndTime = time.Now()

	summary.Extensions = make(map[string]models.ExtensionStat, len(t.summary.Extensions))
	for ext, stat := range t.summary.Extensions {
		summary.Extensions[ext] = stat
	}
	summary.Failures = append([]models.FailureRecord(nil), t.summary.Failures...)
	return summary
}
