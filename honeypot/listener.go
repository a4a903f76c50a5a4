package honeypot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/daniellavrushin/lure/log"
	"github.com/google/uuid"
)

// Listener owns one bound TCP socket and dispatches every accepted
// connection to its own goroutine running the Handler.
type Listener struct {
	Address   string
	Port      int
	ReusePort bool

	handler *Handler
	counter *Counter

	mu       sync.Mutex
	ln       net.Listener
	inflight sync.WaitGroup
}

// NewListener binds nothing yet. A nil counter gives the listener its own.
func NewListener(address string, port int, h *Handler, counter *Counter) *Listener {
	if counter == nil {
		counter = &Counter{}
	}
	return &Listener{
		Address: address,
		Port:    port,
		handler: h,
		counter: counter,
	}
}

func (l *Listener) Counter() *Counter { return l.counter }

// Addr is the bound address, nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Listen binds the socket. Failure is a *BindError.
func (l *Listener) Listen(ctx context.Context) error {
	addr := net.JoinHostPort(l.Address, strconv.Itoa(l.Port))
	lc := net.ListenConfig{Control: listenControl(l.ReusePort)}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return &BindError{Address: l.Address, Port: l.Port, Err: err}
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	log.Infof("Honeypot listening on %s", ln.Addr())
	l.handler.observer().ListenerStarted(l.Port, ln.Addr().String())
	return nil
}

// Serve runs the accept loop until ctx is cancelled (returns nil) or the
// socket dies underneath it (returns the error). Accept errors on a live
// socket are logged and the loop continues.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("listener on port %d is not bound", l.Port)
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("%w on port %d: %v", ErrAccept, l.Port, err)
			}
			log.Errorf("Failed to accept connection on port %d: %v", l.Port, err)
			l.handler.observer().ConnectionFailed(l.Port, "accept", err)

			// back off on fd exhaustion and similar, up to 1s
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		seq := l.counter.Next()
		session := uuid.NewString()

		l.inflight.Add(1)
		go func() {
			defer l.inflight.Done()
			l.handler.Handle(conn, l.Port, seq, session)
		}()
	}
}

// ListenAndServe binds the port and serves it; it only returns on bind
// failure, socket death, or ctx cancellation.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	if err := l.Listen(ctx); err != nil {
		return err
	}
	return l.Serve(ctx)
}

// Close releases the socket without waiting for in-flight connections.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

// Wait blocks until every dispatched handler has returned.
func (l *Listener) Wait() {
	l.inflight.Wait()
}
