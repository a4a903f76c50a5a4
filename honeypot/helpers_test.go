package honeypot

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/daniellavrushin/lure/fingerprint"
	"github.com/daniellavrushin/lure/interaction"
)

const testBanner = "SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.5\r\n"

type memSink struct {
	mu   sync.Mutex
	recs []interaction.Record
	got  chan interaction.Record
}

func newMemSink() *memSink {
	return &memSink{got: make(chan interaction.Record, 1024)}
}

func (m *memSink) Persist(rec interaction.Record) {
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	m.got <- rec
}

func (m *memSink) records() []interaction.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interaction.Record(nil), m.recs...)
}

// wait returns the next n records or fails the test after timeout.
func (m *memSink) wait(t *testing.T, n int) []interaction.Record {
	t.Helper()
	out := make([]interaction.Record, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case r := <-m.got:
			out = append(out, r)
		case <-deadline:
			t.Fatalf("timed out waiting for %d records, got %d", n, len(out))
		}
	}
	return out
}

type accepted struct {
	port int
	seq  uint64
}

type recObserver struct {
	nopObserver
	mu       sync.Mutex
	accepted []accepted
	failed   []string
	started  []string
	hellos   []string
}

func (o *recObserver) ListenerStarted(port int, addr string) {
	o.mu.Lock()
	o.started = append(o.started, addr)
	o.mu.Unlock()
}

func (o *recObserver) ConnectionAccepted(port int, seq uint64, remote string) {
	o.mu.Lock()
	o.accepted = append(o.accepted, accepted{port: port, seq: seq})
	o.mu.Unlock()
}

func (o *recObserver) ConnectionFailed(port int, stage string, err error) {
	o.mu.Lock()
	o.failed = append(o.failed, stage)
	o.mu.Unlock()
}

func (o *recObserver) TLSClientHello(port int, remote string, hello fingerprint.ClientHello) {
	o.mu.Lock()
	o.hellos = append(o.hellos, hello.ServerName)
	o.mu.Unlock()
}

func (o *recObserver) seqs() []uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]uint64, len(o.accepted))
	for i, a := range o.accepted {
		out[i] = a.seq
	}
	return out
}

// dialAndGreet connects, reads exactly the banner and returns the conn.
func dialAndGreet(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	c.SetDeadline(time.Now().Add(5 * time.Second))
	got := make([]byte, len(testBanner))
	if _, err := io.ReadFull(c, got); err != nil {
		c.Close()
		t.Fatalf("read banner: %v", err)
	}
	if string(got) != testBanner {
		c.Close()
		t.Fatalf("banner = %q, want %q", got, testBanner)
	}
	return c
}

func localPort(c net.Conn) uint16 {
	return uint16(c.LocalAddr().(*net.TCPAddr).Port)
}
