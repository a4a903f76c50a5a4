// Package sink persists interaction records. A single Writer goroutine
// drains a bounded queue into a Backend; callers never wait on disk I/O.
package sink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/daniellavrushin/lure/interaction"
	"github.com/daniellavrushin/lure/log"
)

var (
	ErrSerialize = errors.New("serialize record")
	ErrOpen      = errors.New("open sink")
	ErrWrite     = errors.New("write sink")
	ErrQueueFull = errors.New("sink queue full")
	ErrClosed    = errors.New("sink closed")
)

// Observer is called on the writer goroutine after a line was persisted.
type Observer func(rec interaction.Record, line []byte)

type Writer struct {
	backend Backend
	queue   chan interaction.Record
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	obsMu     sync.RWMutex
	observers []Observer
	onError   func(interaction.Record, error)

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewWriter starts the writer goroutine. queueSize below 1 is treated as 1.
func NewWriter(backend Backend, queueSize int) *Writer {
	if queueSize < 1 {
		queueSize = 1
	}
	w := &Writer{
		backend: backend,
		queue:   make(chan interaction.Record, queueSize),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Subscribe registers fn for every persisted record.
func (w *Writer) Subscribe(fn Observer) {
	w.obsMu.Lock()
	w.observers = append(w.observers, fn)
	w.obsMu.Unlock()
}

// OnError installs a hook that sees every dropped record and why.
func (w *Writer) OnError(fn func(interaction.Record, error)) {
	w.obsMu.Lock()
	w.onError = fn
	w.obsMu.Unlock()
}

// Persist queues rec and returns immediately. When the queue is full or the
// writer is closed the record is dropped and logged.
func (w *Writer) Persist(rec interaction.Record) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.fail(rec, ErrClosed)
		return
	}
	select {
	case w.queue <- rec:
	default:
		w.fail(rec, ErrQueueFull)
	}
}

// Close stops accepting records and waits for the queue to drain or ctx to end.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) Written() uint64 { return w.written.Load() }
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }
func (w *Writer) Pending() int    { return len(w.queue) }

func (w *Writer) run() {
	defer close(w.done)
	for rec := range w.queue {
		w.persist(rec)
	}
}

func (w *Writer) persist(rec interaction.Record) {
	line, err := rec.Marshal()
	if err != nil {
		w.fail(rec, errors.Join(ErrSerialize, err))
		return
	}
	if err := w.backend.Append(line); err != nil {
		w.fail(rec, err)
		return
	}
	w.written.Add(1)

	w.obsMu.RLock()
	obs := w.observers
	w.obsMu.RUnlock()
	for _, fn := range obs {
		fn(rec, line)
	}
}

func (w *Writer) fail(rec interaction.Record, err error) {
	w.dropped.Add(1)
	log.Errorf("Interaction from %s:%d dropped: %v", rec.IPAddress, rec.Port, err)

	w.obsMu.RLock()
	hook := w.onError
	w.obsMu.RUnlock()
	if hook != nil {
		hook(rec, err)
	}
}
