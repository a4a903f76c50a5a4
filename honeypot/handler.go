package honeypot

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/daniellavrushin/lure/fingerprint"
	"github.com/daniellavrushin/lure/interaction"
	"github.com/daniellavrushin/lure/log"
	"github.com/daniellavrushin/lure/netset"
)

const DefaultBufferSize = 1024

// Handler runs the capture protocol on one accepted connection: banner out,
// a single bounded read in, one record to the Persister.
type Handler struct {
	Banner      []byte
	BufferSize  int
	IdleTimeout time.Duration // 0 disables the read deadline
	Sink        Persister
	Quiet       *netset.Set
	Observer    Observer

	now func() time.Time
}

func NewHandler(banner string, bufferSize int, idle time.Duration, sink Persister) *Handler {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Handler{
		Banner:      []byte(banner),
		BufferSize:  bufferSize,
		IdleTimeout: idle,
		Sink:        sink,
		Observer:    nopObserver{},
		now:         time.Now,
	}
}

// Handle always closes conn. It returns the record handed to the sink, or
// an error wrapping ErrBannerWrite/ErrCaptureRead when no record was made.
// port is the local listener port, seq the connection's counter value.
func (h *Handler) Handle(conn net.Conn, port int, seq uint64, session string) (interaction.Record, error) {
	obs := h.observer()
	defer func() {
		conn.Close()
		obs.ConnectionClosed(port)
	}()

	peer := conn.RemoteAddr()
	log.Infof("New connection from: %s (Total: %d) port=%d session=%s", peer, seq, port, session)
	obs.ConnectionAccepted(port, seq, peer.String())

	if h.IdleTimeout > 0 {
		conn.SetDeadline(h.clock().Add(h.IdleTimeout))
	}

	if _, err := conn.Write(h.Banner); err != nil {
		err = fmt.Errorf("%w to %s: %v", ErrBannerWrite, peer, err)
		log.Errorf("Failed to send banner: %v", err)
		obs.ConnectionFailed(port, "write", err)
		return interaction.Record{}, err
	}

	buf := make([]byte, h.bufferSize())
	n, err := conn.Read(buf)
	switch {
	case n > 0:
		// data wins over a trailing error from the same read
	case err == nil || errors.Is(err, io.EOF):
		log.Infof("Connection closed by client: %s session=%s", peer, session)
	case errors.Is(err, os.ErrDeadlineExceeded):
		log.Tracef("Idle timeout after %s: %s session=%s", h.IdleTimeout, peer, session)
	default:
		err = fmt.Errorf("%w from %s: %v", ErrCaptureRead, peer, err)
		log.Errorf("Failed to read from socket: %v", err)
		obs.ConnectionFailed(port, "read", err)
		return interaction.Record{}, err
	}

	rec := interaction.New(h.clock(), peer, buf[:n])
	if n > 0 {
		log.Warnf("Received data from %s: %q", peer, rec.Data)
		// the record only keeps lossy text, fingerprint the raw bytes here
		if hello, ok := fingerprint.ParseClientHello(buf[:n]); ok {
			log.Infof("TLS ClientHello from %s sni=%q alpn=%v ech=%v", peer, hello.ServerName, hello.ALPN, hello.ECH)
			obs.TLSClientHello(port, peer.String(), hello)
		}
	}

	quiet := h.Quiet.ContainsString(rec.IPAddress)
	if quiet {
		log.Tracef("Not recording %s: quiet network", rec.IPAddress)
	} else if h.Sink != nil {
		h.Sink.Persist(rec)
	}
	obs.InteractionCaptured(port, rec, quiet)

	return rec, nil
}

func (h *Handler) bufferSize() int {
	if h.BufferSize < 1 {
		return DefaultBufferSize
	}
	return h.BufferSize
}

func (h *Handler) clock() time.Time {
	if h.now == nil {
		return time.Now()
	}
	return h.now()
}

func (h *Handler) observer() Observer {
	if h.Observer == nil {
		return nopObserver{}
	}
	return h.Observer
}
