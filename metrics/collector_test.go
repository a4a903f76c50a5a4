package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daniellavrushin/lure/fingerprint"
	"github.com/daniellavrushin/lure/honeypot"
	"github.com/daniellavrushin/lure/interaction"
)

var _ honeypot.Observer = (*Collector)(nil)

func rec(ip, data string) interaction.Record {
	return interaction.Record{Timestamp: "2024-11-07T08:14:33Z", IPAddress: ip, Port: 40000, Data: data}
}

func TestCollector_ConnectionLifecycle(t *testing.T) {
	m := NewCollector()

	m.ConnectionAccepted(22, 1, "203.0.113.7:40000")
	m.ConnectionAccepted(22, 2, "203.0.113.8:40001")
	m.ConnectionAccepted(80, 1, "203.0.113.7:40002")
	m.ConnectionClosed(22)

	s := m.GetSnapshot()
	if s.TotalConnections != 3 || s.ActiveConnections != 2 {
		t.Errorf("total=%d active=%d", s.TotalConnections, s.ActiveConnections)
	}
	if s.PortDist["22"] != 2 || s.PortDist["80"] != 1 {
		t.Errorf("port dist = %v", s.PortDist)
	}

	// closing more than was opened must not underflow
	for range 5 {
		m.ConnectionClosed(22)
	}
	if got := m.GetSnapshot().ActiveConnections; got != 0 {
		t.Errorf("active = %d", got)
	}
}

func TestCollector_Interactions(t *testing.T) {
	m := NewCollector()

	m.InteractionCaptured(22, rec("203.0.113.7", "hello"), false)
	m.InteractionCaptured(22, rec("203.0.113.7", ""), false)
	m.InteractionCaptured(23, rec("10.0.0.1", "probe"), true)

	s := m.GetSnapshot()
	if s.TotalInteractions != 3 {
		t.Errorf("total interactions = %d", s.TotalInteractions)
	}
	if s.EmptyInteractions != 1 || s.QuietInteractions != 1 {
		t.Errorf("empty=%d quiet=%d", s.EmptyInteractions, s.QuietInteractions)
	}
	if s.BytesCaptured != 10 {
		t.Errorf("bytes = %d", s.BytesCaptured)
	}
	if s.TopSources["203.0.113.7"] != 2 {
		t.Errorf("top sources = %v", s.TopSources)
	}
	if _, ok := s.TopSources["10.0.0.1"]; ok {
		t.Error("quiet source counted in top sources")
	}
	if len(s.RecentInteractions) != 3 || s.RecentInteractions[0].Port != 23 {
		t.Errorf("recent = %+v", s.RecentInteractions)
	}
}

func TestCollector_RecentIsBounded(t *testing.T) {
	m := NewCollector()
	for i := range maxRecent + 10 {
		m.InteractionCaptured(22, rec("198.51.100.1", fmt.Sprint(i)), false)
	}
	s := m.GetSnapshot()
	if len(s.RecentInteractions) != maxRecent {
		t.Fatalf("recent = %d", len(s.RecentInteractions))
	}
	if want := fmt.Sprint(maxRecent + 9); s.RecentInteractions[0].Preview != want {
		t.Errorf("newest first expected, got %q", s.RecentInteractions[0].Preview)
	}
}

func TestCollector_TopSourcesPruned(t *testing.T) {
	m := NewCollector()
	for i := range maxTopSources + 20 {
		m.InteractionCaptured(22, rec(fmt.Sprintf("198.51.%d.%d", i/250, i%250), "x"), false)
	}
	if n := len(m.GetSnapshot().TopSources); n > maxTopSources {
		t.Errorf("top sources grew to %d", n)
	}
}

func TestCollector_NewSourceSurvivesFullTable(t *testing.T) {
	m := NewCollector()
	for i := range maxTopSources {
		src := fmt.Sprintf("198.51.100.%d", i)
		m.InteractionCaptured(22, rec(src, "x"), false)
		m.InteractionCaptured(22, rec(src, "x"), false)
	}
	m.InteractionCaptured(22, rec("203.0.113.9", "x"), false)
	for range maxTopSources {
		m.TLSClientHello(443, "203.0.113.9:1", fingerprint.ClientHello{ServerName: "old.example"})
	}
	for i := range maxTopSources - 1 {
		name := fmt.Sprintf("n%d.example", i)
		m.TLSClientHello(443, "203.0.113.9:1", fingerprint.ClientHello{ServerName: name})
		m.TLSClientHello(443, "203.0.113.9:1", fingerprint.ClientHello{ServerName: name})
	}
	m.TLSClientHello(443, "203.0.113.9:1", fingerprint.ClientHello{ServerName: "new.example"})

	s := m.GetSnapshot()
	if len(s.TopSources) != maxTopSources {
		t.Errorf("top sources = %d entries", len(s.TopSources))
	}
	if s.TopSources["203.0.113.9"] != 1 {
		t.Errorf("newest source was evicted")
	}
	if len(s.TopServerNames) != maxTopSources || s.TopServerNames["new.example"] != 1 {
		t.Errorf("newest server name was evicted: %d entries", len(s.TopServerNames))
	}
	if s.TopServerNames["old.example"] != maxTopSources {
		t.Errorf("most seen server name was evicted")
	}
}

func TestCollector_PreviewTruncated(t *testing.T) {
	m := NewCollector()
	m.InteractionCaptured(80, rec("198.51.100.1", strings.Repeat("é", 500)), false)

	p := m.GetSnapshot().RecentInteractions[0]
	if p.Bytes != 1000 {
		t.Errorf("bytes = %d", p.Bytes)
	}
	if !strings.HasSuffix(p.Preview, "...") || len([]rune(p.Preview)) != maxPreviewLength+3 {
		t.Errorf("preview not truncated on rune boundary: %d runes", len([]rune(p.Preview)))
	}
}

func TestCollector_FailuresAndDrops(t *testing.T) {
	m := NewCollector()
	m.ConnectionFailed(22, "accept", errors.New("too many open files"))
	m.ConnectionFailed(22, "write", errors.New("broken pipe"))
	m.RecordDrop(rec("203.0.113.7", "x"), errors.New("sink queue full"))

	s := m.GetSnapshot()
	if s.FailedConnections != 2 || s.FailureDist["accept"] != 1 || s.FailureDist["write"] != 1 {
		t.Errorf("failures = %d %v", s.FailedConnections, s.FailureDist)
	}
	if s.DroppedRecords != 1 {
		t.Errorf("dropped = %d", s.DroppedRecords)
	}
	// accept failures stay out of the event ring
	if len(s.RecentEvents) != 2 || s.RecentEvents[0].Level != "error" {
		t.Errorf("events = %+v", s.RecentEvents)
	}
}

func TestCollector_TLSClientHello(t *testing.T) {
	m := NewCollector()
	m.TLSClientHello(443, "203.0.113.7:40000", fingerprint.ClientHello{ServerName: "a.example"})
	m.TLSClientHello(8443, "203.0.113.8:40000", fingerprint.ClientHello{ServerName: "a.example"})
	m.TLSClientHello(443, "203.0.113.9:40000", fingerprint.ClientHello{})

	s := m.GetSnapshot()
	if s.TLSHellos != 3 || s.TopServerNames["a.example"] != 2 || s.TopServerNames["(none)"] != 1 {
		t.Errorf("hellos=%d names=%v", s.TLSHellos, s.TopServerNames)
	}
}

func TestCollector_Rates(t *testing.T) {
	m := NewCollector()
	start := m.lastUpdate

	for range 10 {
		m.ConnectionAccepted(22, 1, "x")
	}
	m.updateRates(start.Add(2 * time.Second))

	s := m.GetSnapshot()
	if s.CurrentCPS != 5 {
		t.Errorf("cps = %v", s.CurrentCPS)
	}
	if len(s.ConnectionRate) != 1 || s.Uptime == "" {
		t.Errorf("rate=%v uptime=%q", s.ConnectionRate, s.Uptime)
	}

	for i := range rateWindow + 5 {
		m.updateRates(start.Add(time.Duration(3+i) * time.Second))
	}
	if n := len(m.GetSnapshot().ConnectionRate); n != rateWindow {
		t.Errorf("rate window = %d", n)
	}
}

func TestCollector_SnapshotIsIndependent(t *testing.T) {
	m := NewCollector()
	m.ConnectionAccepted(22, 1, "x")
	s := m.GetSnapshot()

	m.ConnectionAccepted(22, 2, "x")
	if s.PortDist["22"] != 1 {
		t.Error("snapshot map aliased the live collector")
	}
}

func TestCollector_SnapshotJSON(t *testing.T) {
	m := NewCollector()
	m.updateSystemStats()

	b, err := json.Marshal(m.GetSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"total_connections", "port_dist", "recent_interactions", "listeners", "process"} {
		if _, ok := out[key]; !ok {
			t.Errorf("missing %q", key)
		}
	}
	if out["listeners"] == nil {
		t.Error("listeners encoded as null")
	}
}

func TestCollector_Concurrent(t *testing.T) {
	m := NewCollector()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				m.ConnectionAccepted(22, uint64(j), "x")
				m.InteractionCaptured(22, rec(fmt.Sprintf("192.0.2.%d", i), "x"), false)
				m.ConnectionClosed(22)
				_ = m.GetSnapshot()
			}
		}()
	}
	wg.Wait()

	s := m.GetSnapshot()
	if s.TotalConnections != 1000 || s.TotalInteractions != 1000 || s.ActiveConnections != 0 {
		t.Errorf("total=%d interactions=%d active=%d", s.TotalConnections, s.TotalInteractions, s.ActiveConnections)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 3*time.Minute, "2h 3m 0s"},
		{49 * time.Hour, "2d 1h 0m 0s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
