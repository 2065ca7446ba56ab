// Package transfer orchestrates a bucket-to-bucket copy run: enumerate
// the source, decide per object, stream the objects that need copying,
// and account for everything in a final summary.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"buckethop/pkg/compare"
	"buckethop/pkg/models"
	"buckethop/pkg/pool"
	"buckethop/pkg/prefetch"
	"buckethop/pkg/progress"
	"buckethop/pkg/s3url"
	"buckethop/pkg/storage"
	"buckethop/pkg/streaming"
)

// State tracks where a run is in its lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateEnumerating State = "enumerating"
	StateCopying     State = "copying"
	StateFinalizing  State = "finalizing"
	StateCompleted   State = "completed"
	StateInterrupted State = "interrupted"
	StateFailed      State = "failed"
)

// Endpoint is one side of a transfer.
type Endpoint struct {
	Store  storage.ObjectStore
	Bucket string
	Prefix string
}

// Options configure a run.
type Options struct {
	// Workers is the number of concurrent object copies (default 4).
	Workers int
	// ChunkSize is the streaming chunk size in bytes (default 8 MiB).
	ChunkSize int64
	// DryRun enumerates and decides without moving any bytes.
	DryRun bool
	// SkipDestPrefetch replaces the bulk destination listing with
	// per-object Head lookups.
	SkipDestPrefetch bool
	Logger           *zap.Logger
}

// Coordinator drives one transfer run end to end.
type Coordinator struct {
	src    Endpoint
	dst    Endpoint
	opts   Options
	copier *streaming.Copier
	log    *zap.Logger

	mu          sync.RWMutex
	state       State
	tracker     *progress.Tracker
	interrupted bool
}

// New creates a coordinator for one source/destination pair.
func New(src, dst Endpoint, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Workers > 64 {
		opts.Workers = 64
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = streaming.DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Coordinator{
		src:    src,
		dst:    dst,
		opts:   opts,
		copier: streaming.NewCopier(opts.ChunkSize, opts.Logger),
		log:    opts.Logger,
		state:  StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Tracker exposes the progress tracker for rendering. Nil until the run
// reaches the copying stage.
func (c *Coordinator) Tracker() *progress.Tracker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tracker
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run executes the transfer. A summary is always returned, also on fatal
// failure and interruption; the error is non-nil only for fatal startup
// conditions. Per-object failures are reported through the summary.
func (c *Coordinator) Run(ctx context.Context) (models.RunSummary, error) {
	start := time.Now()
	c.setState(StateEnumerating)

	if err := c.dst.Store.Validate(ctx, c.dst.Bucket); err != nil {
		return c.fail(start, fmt.Errorf("%w: %v", ErrDestinationUnreachable, err))
	}

	index := prefetch.NewIndex(c.dst.Store, c.dst.Bucket, c.dst.Prefix)
	if !c.opts.SkipDestPrefetch {
		if err := index.Load(ctx); err != nil {
			return c.fail(start, fmt.Errorf("%w: %v", ErrDestinationUnreachable, err))
		}
	}

	tasks, totalBytes, err := c.enumerate(ctx, index)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return c.finalizeEmpty(start, models.RunInterrupted), nil
		}
		if errors.Is(err, ErrDestinationUnreachable) {
			return c.fail(start, err)
		}
		return c.fail(start, fmt.Errorf("%w: %v", ErrListingFailure, err))
	}

	c.log.Info("enumeration complete",
		zap.Int("objects", len(tasks)),
		zap.Int64("bytes", totalBytes),
		zap.Int("already_present", index.Len()))

	tracker := progress.NewTracker(int64(len(tasks)), totalBytes)
	c.mu.Lock()
	c.tracker = tracker
	c.state = StateCopying
	c.mu.Unlock()

	c.dispatch(ctx, tasks, tracker)

	c.setState(StateFinalizing)
	tracker.Close()

	state := models.RunCompleted
	finalState := StateCompleted
	c.mu.RLock()
	interrupted := c.interrupted
	c.mu.RUnlock()
	if interrupted {
		state = models.RunInterrupted
		finalState = StateInterrupted
	}

	summary := tracker.Summary(state)
	summary.StartTime = start
	c.setState(finalState)
	return summary, nil
}

// enumerate lists the source prefix and pairs every object with a copy
// decision against the destination index.
func (c *Coordinator) enumerate(ctx context.Context, index *prefetch.Index) ([]models.TransferTask, int64, error) {
	var tasks []models.TransferTask
	var totalBytes int64

	err := c.src.Store.List(ctx, c.src.Bucket, c.src.Prefix, func(desc models.ObjectDescriptor) error {
		rel := s3url.RelativeKey(desc.Key, c.src.Prefix)
		if rel == "" {
			// Placeholder entry for the prefix itself.
			return nil
		}

		dst, err := index.Lookup(ctx, rel)
		if err != nil {
			// The source listing is fine here; the failing side is the
			// destination metadata lookup.
			return fmt.Errorf("%w: head %s: %w", ErrDestinationUnreachable, rel, err)
		}

		tasks = append(tasks, models.TransferTask{
			Source:   desc,
			DestKey:  s3url.JoinKey(c.dst.Prefix, rel),
			Decision: compare.Decide(desc, dst),
		})
		totalBytes += desc.Size
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return tasks, totalBytes, nil
}

// dispatch feeds copy tasks to the worker pool. Skips never touch the
// copier; cancellation stops dispatching and lets in-flight copies abort
// through the sink.
func (c *Coordinator) dispatch(ctx context.Context, tasks []models.TransferTask, tracker *progress.Tracker) {
	workers := pool.NewWorkerPool(ctx, c.opts.Workers)

	for _, task := range tasks {
		if ctx.Err() != nil {
			c.markInterrupted()
			break
		}

		if task.Decision.Action == models.ActionSkip {
			tracker.Record(models.ProgressEvent{
				Kind: models.EventObjectSkipped,
				Key:  task.Source.Key,
				Size: task.Source.Size,
			})
			continue
		}

		if c.opts.DryRun {
			c.log.Info("would copy",
				zap.String("key", task.Source.Key),
				zap.String("dest", task.DestKey),
				zap.Int64("bytes", task.Source.Size),
				zap.String("reason", string(task.Decision.Reason)))
			tracker.Record(models.ProgressEvent{
				Kind: models.EventObjectCompleted,
				Key:  task.Source.Key,
			})
			continue
		}

		task := task
		if !workers.Submit(func(ctx context.Context) error {
			return c.copyObject(ctx, task, tracker)
		}) {
			c.markInterrupted()
			break
		}
	}

	workers.Stop()
	if ctx.Err() != nil {
		c.markInterrupted()
	}
}

// copyObject streams one object. Failures are recorded and swallowed so
// one bad object never aborts the run; cancellation propagates without a
// terminal event, leaving it to the run-level interruption accounting.
func (c *Coordinator) copyObject(ctx context.Context, task models.TransferTask, tracker *progress.Tracker) error {
	src := task.Source

	if err := ctx.Err(); err != nil {
		return err
	}

	reader, err := c.src.Store.OpenRead(ctx, src.Bucket, src.Key)
	if err != nil {
		return c.recordFailure(tracker, task, err)
	}
	defer reader.Close()

	contentType := src.ContentType
	var body io.Reader = reader
	if contentType == "" && src.Size > 0 {
		detected, replay, err := streaming.DetectContentType(reader)
		if err != nil {
			return c.recordFailure(tracker, task, err)
		}
		contentType, body = detected, replay
	}

	sink, err := c.dst.Store.OpenWrite(ctx, c.dst.Bucket, task.DestKey, contentType, src.Size)
	if err != nil {
		return c.recordFailure(tracker, task, err)
	}

	res, err := c.copier.Copy(ctx, src.Key, body, sink, func(n int64) {
		tracker.Record(models.ProgressEvent{
			Kind:       models.EventChunkCopied,
			Key:        src.Key,
			BytesDelta: n,
		})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.log.Info("transfer aborted by interruption", zap.String("key", src.Key))
			return err
		}
		return c.recordFailure(tracker, task, err)
	}

	if fp := src.ETag; fp != "" && !strings.Contains(fp, "-") && fp != res.MD5 {
		// The listing snapshot may be stale; the destination now holds
		// what the source served during this run.
		c.log.Warn("source fingerprint changed during copy",
			zap.String("key", src.Key),
			zap.String("listed", fp),
			zap.String("streamed", res.MD5))
	}

	tracker.Record(models.ProgressEvent{
		Kind: models.EventObjectCompleted,
		Key:  src.Key,
		Size: res.BytesCopied,
	})
	c.log.Info("copied",
		zap.String("key", src.Key),
		zap.String("dest", task.DestKey),
		zap.Int64("bytes", res.BytesCopied),
		zap.String("reason", string(task.Decision.Reason)))
	return nil
}

func (c *Coordinator) recordFailure(tracker *progress.Tracker, task models.TransferTask, err error) error {
	tracker.Record(models.ProgressEvent{
		Kind: models.EventObjectFailed,
		Key:  task.Source.Key,
		Size: task.Source.Size,
		Err:  err,
	})
	c.log.Error("copy failed",
		zap.String("key", task.Source.Key),
		zap.Error(err))
	return err
}

func (c *Coordinator) markInterrupted() {
	c.mu.Lock()
	c.interrupted = true
	c.mu.Unlock()
}

func (c *Coordinator) fail(start time.Time, err error) (models.RunSummary, error) {
	c.log.Error("run failed before any object was processed", zap.Error(err))
	return c.finalizeEmpty(start, models.RunFailed), err
}

// finalizeEmpty produces the summary for runs that never reached the
// copying stage. Finalizing always runs so the operator always gets an
// accounting.
func (c *Coordinator) finalizeEmpty(start time.Time, state models.RunState) models.RunSummary {
	final := StateFailed
	if state == models.RunInterrupted {
		final = StateInterrupted
	}
	c.setState(final)
	return models.RunSummary{
		State:      state,
		Extensions: make(map[string]models.ExtensionStat),
		StartTime:  start,
		EndTime:    time.Now(),
	}
}
