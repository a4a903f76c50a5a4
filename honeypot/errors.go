package honeypot

import (
	"errors"
	"fmt"
)

var (
	ErrBannerWrite = errors.New("send banner")
	ErrCaptureRead = errors.New("read payload")
	ErrAccept      = errors.New("accept connection")
)

// BindError reports a listener that could not bind its port. It is fatal to
// that listener and therefore to the engine.
type BindError struct {
	Address string
	Port    int
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s port %d: %v", e.Address, e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }
