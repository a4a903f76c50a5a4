package honeypot

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/daniellavrushin/lure/config"
	"github.com/daniellavrushin/lure/log"
	"github.com/daniellavrushin/lure/netset"
	"golang.org/x/sync/errgroup"
)

// Engine runs one Listener per configured port. If any listener stops for
// a reason other than cancellation the whole engine stops with its error.
type Engine struct {
	handler   *Handler
	listeners []*Listener
}

// NewEngine builds the listener set from an already validated cfg. Counters
// are per listener unless the scope is global.
func NewEngine(cfg config.HoneypotConfig, sink Persister, obs Observer) (*Engine, error) {
	quiet, err := netset.Parse(cfg.QuietNetworks)
	if err != nil {
		return nil, fmt.Errorf("quiet networks: %w", err)
	}

	h := NewHandler(cfg.Banner, cfg.ReadBufferSize, cfg.IdleTimeout(), sink)
	h.Quiet = quiet
	if obs != nil {
		h.Observer = obs
	}

	var shared *Counter
	if cfg.CounterScope == config.CounterScopeGlobal {
		shared = &Counter{}
	}

	e := &Engine{handler: h}
	for _, port := range cfg.Ports {
		l := NewListener(cfg.BindAddress, port, h, shared)
		l.ReusePort = cfg.ReusePort
		e.listeners = append(e.listeners, l)
	}
	if quiet.Len() > 0 {
		log.Infof("Quiet networks: %d entries will not be recorded", quiet.Len())
	}
	return e, nil
}

func (e *Engine) Listeners() []*Listener { return e.listeners }

// Addrs returns the bound addresses in port order; nil entries are unbound.
func (e *Engine) Addrs() []net.Addr {
	out := make([]net.Addr, len(e.listeners))
	for i, l := range e.listeners {
		out[i] = l.Addr()
	}
	return out
}

// Listen binds every port. On the first failure the ports bound so far are
// released and the *BindError is returned.
func (e *Engine) Listen(ctx context.Context) error {
	for i, l := range e.listeners {
		if err := l.Listen(ctx); err != nil {
			for _, bound := range e.listeners[:i] {
				bound.Close()
			}
			return err
		}
	}
	return nil
}

// Serve supervises the bound listeners and returns once all of them have
// stopped and their in-flight connections finished.
func (e *Engine) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range e.listeners {
		g.Go(func() error {
			err := l.Serve(gctx)
			if err != nil {
				log.Errorf("Honeypot on port %d failed: %v", l.Port, err)
			}
			return err
		})
	}
	err := g.Wait()
	for _, l := range e.listeners {
		l.Wait()
	}
	return err
}

// Run is Listen followed by Serve.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Listen(ctx); err != nil {
		var be *BindError
		if errors.As(err, &be) {
			log.Errorf("Honeypot on port %d failed: %v", be.Port, be.Err)
		}
		return err
	}
	return e.Serve(ctx)
}
