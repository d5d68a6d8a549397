// Package usage records one entry per completed request off the request path
// and answers self-service analytics queries over the recent history.
package usage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"glucolog/internal/platform/models"
)

// StatusAborted is recorded when the client went away before a status was written.
const StatusAborted = 499

// Sink persists a batch of usage records.
type Sink interface {
	Write(ctx context.Context, records []models.UsageRecord) error
}

type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
	Now           func() time.Time
}

func (o *Options) normalize() {
	if o.QueueSize <= 0 {
		o.QueueSize = 4096
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Recorder buffers records in a bounded queue drained by one background goroutine.
// Record never blocks; a full queue drops the record.
type Recorder struct {
	sink Sink
	opts Options

	mu     sync.RWMutex
	closed bool
	queue  chan models.UsageRecord
	done   chan struct{}

	dropped atomic.Int64
	written atomic.Int64
	failed  atomic.Int64
}

func NewRecorder(sink Sink, opts Options) *Recorder {
	opts.normalize()
	r := &Recorder{
		sink:  sink,
		opts:  opts,
		queue: make(chan models.UsageRecord, opts.QueueSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues rec and reports whether it was accepted.
func (r *Recorder) Record(rec models.UsageRecord) bool {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = r.opts.Now().UnixMilli()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(rec, "closed")
		return false
	}

	select {
	case r.queue <- rec:
		return true
	default:
		r.drop(rec, "queue full")
		return false
	}
}

func (r *Recorder) drop(rec models.UsageRecord, reason string) {
	r.dropped.Add(1)
	log.Warn().
		Str("principal_id", rec.PrincipalID).
		Str("endpoint", rec.Endpoint).
		Int("status", rec.StatusCode).
		Str("reason", reason).
		Msg("usage record dropped")
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]models.UsageRecord, 0, r.opts.BatchSize)
	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= r.opts.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) flush(batch []models.UsageRecord) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.WriteTimeout)
	defer cancel()

	if err := r.sink.Write(ctx, batch); err != nil {
		r.failed.Add(int64(len(batch)))
		log.Warn().Err(err).Int("records", len(batch)).Msg("usage batch write failed")
		return
	}
	r.written.Add(int64(len(batch)))
}

// Close stops intake and waits for queued records to be flushed or ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Stats struct {
	Queued  int   `json:"queued"`
	Dropped int64 `json:"dropped"`
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
}

func (r *Recorder) Stats() Stats {
	return Stats{
		Queued:  len(r.queue),
		Dropped: r.dropped.Load(),
		Written: r.written.Load(),
		Failed:  r.failed.Load(),
	}
}
