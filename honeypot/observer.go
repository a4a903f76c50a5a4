package honeypot

import (
	"github.com/daniellavrushin/lure/fingerprint"
	"github.com/daniellavrushin/lure/interaction"
)

// Persister takes ownership of a finished record. Persist must not block.
type Persister interface {
	Persist(rec interaction.Record)
}

// Observer receives lifecycle events from listeners and handlers. Calls
// happen on connection goroutines and must be cheap.
type Observer interface {
	ListenerStarted(port int, addr string)
	ConnectionAccepted(port int, seq uint64, remote string)
	ConnectionFailed(port int, stage string, err error)
	InteractionCaptured(port int, rec interaction.Record, quiet bool)
	TLSClientHello(port int, remote string, hello fingerprint.ClientHello)
	ConnectionClosed(port int)
}

type nopObserver struct{}

func (nopObserver) ListenerStarted(int, string)                         {}
func (nopObserver) ConnectionAccepted(int, uint64, string)              {}
func (nopObserver) ConnectionFailed(int, string, error)                 {}
func (nopObserver) InteractionCaptured(int, interaction.Record, bool)   {}
func (nopObserver) TLSClientHello(int, string, fingerprint.ClientHello) {}
func (nopObserver) ConnectionClosed(int)                                {}
