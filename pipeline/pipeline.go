// Package pipeline validates, de-duplicates and batches scraped records on
// their way to a Sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/PavelSimon/EDC-data/config"
	"github.com/PavelSimon/EDC-data/models"
	"github.com/PavelSimon/EDC-data/parser"
)

// ErrClosed is returned by Submit once Close has been called.
var ErrClosed = errors.New("pipeline: closed")

// Sink receives accepted records in batches.
type Sink interface {
	Write(records []models.Record) error
	Close() error
	// Validate reports whether the sink holds a usable result.
	Validate() error
}

// Stats counts what happened to submitted records.
type Stats struct {
	Accepted   int64 `json:"accepted"`
	Invalid    int64 `json:"invalid"`
	Duplicates int64 `json:"duplicates"`
	Batches    int64 `json:"batches"`
}

// Pipeline fans submitted records out to workers that validate them, drop
// repeated (date, time period) slots and write batches to the sink.
type Pipeline struct {
	sink       Sink
	in         chan models.Record
	batchSize  int
	flushEvery time.Duration
	seen       *lru.Cache[string, struct{}]

	accepted   atomic.Int64
	invalid    atomic.Int64
	duplicates atomic.Int64
	batches    atomic.Int64

	wg sync.WaitGroup

	mu     sync.RWMutex // held for reading while sending on in
	closed bool
	quit   chan struct{}

	errOnce sync.Once
	err     error
	failed  chan struct{}
}

// New sizes a pipeline from cfg. Workers are started by Start.
func New(sink Sink, cfg *config.Config) (*Pipeline, error) {
	seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Pipeline{
		sink:       sink,
		in:         make(chan models.Record, cfg.PipelineBufferSize),
		batchSize:  cfg.BatchSize,
		flushEvery: cfg.FlushInterval,
		seen:       seen,
		quit:       make(chan struct{}),
		failed:     make(chan struct{}),
	}, nil
}

// Start launches n workers. With more than one worker, batches reach the
// sink in no particular order.
func (p *Pipeline) Start(n int) {
	if n <= 0 {
		n = 1
	}
	p.wg.Add(n)
	for range n {
		go p.run()
	}
}

// Submit queues records. It blocks while the queue is full and returns
// early when ctx is done or a batch write has failed.
func (p *Pipeline) Submit(ctx context.Context, records []models.Record) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	for _, rec := range records {
		select {
		case p.in <- rec:
		case <-p.failed:
			return p.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops intake and waits until the workers have flushed everything
// or ctx expires. It returns the first write error, if any.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.in)
		close(p.quit)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return p.Err()
	case <-ctx.Done():
		return fmt.Errorf("pipeline: drain: %w", ctx.Err())
	}
}

// Err returns the first write error.
func (p *Pipeline) Err() error {
	select {
	case <-p.failed:
		return p.err
	default:
		return nil
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Accepted:   p.accepted.Load(),
		Invalid:    p.invalid.Load(),
		Duplicates: p.duplicates.Load(),
		Batches:    p.batches.Load(),
	}
}

// ReportEvery logs the counters at debug level until Close.
func (p *Pipeline) ReportEvery(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				st := p.Stats()
				slog.Debug("pipeline progress",
					slog.Int64("accepted", st.Accepted),
					slog.Int64("invalid", st.Invalid),
					slog.Int64("duplicates", st.Duplicates),
					slog.Int("queued", len(p.in)),
				)
			case <-p.quit:
				return
			}
		}
	}()
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	var tick <-chan time.Time
	if p.flushEvery > 0 {
		ticker := time.NewTicker(p.flushEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	batch := make([]models.Record, 0, p.batchSize)
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		if err := p.sink.Write(batch); err != nil {
			p.fail(fmt.Errorf("write batch of %d: %w", len(batch), err))
			return false
		}
		p.batches.Add(1)
		batch = batch[:0]
		return true
	}

	for {
		select {
		case rec, ok := <-p.in:
			if !ok {
				flush()
				return
			}
			if !p.accept(rec) {
				continue
			}
			batch = append(batch, rec)
			if len(batch) >= p.batchSize && !flush() {
				return
			}
		case <-tick:
			if !flush() {
				return
			}
		}
	}
}

func (p *Pipeline) accept(rec models.Record) bool {
	if err := parser.ValidateRecord(&rec); err != nil {
		p.invalid.Add(1)
		slog.Debug("dropping invalid record", slog.Any("error", err))
		return false
	}
	if found, _ := p.seen.ContainsOrAdd(rec.Key(), struct{}{}); found {
		p.duplicates.Add(1)
		return false
	}
	p.accepted.Add(1)
	return true
}

func (p *Pipeline) fail(err error) {
	p.errOnce.Do(func() {
		p.err = err
		close(p.failed)
	})
}
