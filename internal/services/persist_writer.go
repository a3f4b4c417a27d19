package services

import (
	"context"
	"log"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// persistOp is one queued durable write
type persistOp struct {
	name string
	fn   func() error
}

// PersistWriter decouples in-memory mutations from durable storage. Writes
// are queued and executed by a single background worker; a full queue drops
// the write, and failures are logged at debug level. The in-memory state is
// always the one the caller already committed to — persistence never rolls
// it back or blocks it.
type PersistWriter struct {
	queue   chan persistOp
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPersistWriter creates a writer with the given queue depth and a cap on
// durable writes per second.
func NewPersistWriter(queueSize int, writesPerSecond float64) *PersistWriter {
	ctx, cancel := context.WithCancel(context.Background())
	w := &PersistWriter{
		queue:   make(chan persistOp, queueSize),
		limiter: rate.NewLimiter(rate.Limit(writesPerSecond), queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	w.wg.Add(1)
	go w.run()

	return w
}

// Enqueue schedules a durable write. Never blocks: when the queue is full
// the write is dropped and logged.
func (w *PersistWriter) Enqueue(name string, fn func() error) {
	select {
	case w.queue <- persistOp{name: name, fn: fn}:
	default:
		log.Printf("⚠️ [PERSIST] Queue full, dropping write: %s", name)
	}
}

func (w *PersistWriter) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			// Drain what is already queued before exiting
			for {
				select {
				case op := <-w.queue:
					w.execute(op)
				default:
					return
				}
			}
		case op := <-w.queue:
			if err := w.limiter.Wait(w.ctx); err != nil {
				w.execute(op)
				continue
			}
			w.execute(op)
		}
	}
}

func (w *PersistWriter) execute(op persistOp) {
	if err := op.fn(); err != nil {
		slog.Debug("persistence write failed", "op", op.name, "error", err)
	}
}

// Close stops the worker after draining queued writes
func (w *PersistWriter) Close() {
	w.once.Do(func() {
		w.cancel()
		w.wg.Wait()
	})
}
