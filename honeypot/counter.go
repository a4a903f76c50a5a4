package honeypot

import "sync/atomic"

// Counter hands out connection sequence numbers: 1, 2, 3, ... in the order
// Next is called. Safe for concurrent use.
type Counter struct {
	n atomic.Uint64
}

func (c *Counter) Next() uint64 { return c.n.Add(1) }

func (c *Counter) Load() uint64 { return c.n.Load() }
