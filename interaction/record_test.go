package interaction

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestNew(t *testing.T) {
	now := time.Date(2024, 11, 7, 9, 14, 33, 0, time.FixedZone("CET", 3600))
	peer := &net.TCPAddr{IP: net.ParseIP("203.0.113.42"), Port: 54321}

	r := New(now, peer, []byte("hello honeypot\n"))

	if r.Timestamp != "2024-11-07T08:14:33Z" {
		t.Errorf("timestamp should be UTC RFC3339, got %q", r.Timestamp)
	}
	if r.IPAddress != "203.0.113.42" {
		t.Errorf("unexpected ip %q", r.IPAddress)
	}
	if r.Port != 54321 {
		t.Errorf("unexpected port %d", r.Port)
	}
	if r.Data != "hello honeypot\n" {
		t.Errorf("unexpected data %q", r.Data)
	}
}

func TestNew_EmptyPayload(t *testing.T) {
	r := New(time.Now(), &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}, nil)
	if r.Data != "" {
		t.Errorf("expected empty data, got %q", r.Data)
	}
}

func TestSplitPeer_IPv6(t *testing.T) {
	ip, port := SplitPeer(&net.TCPAddr{IP: net.ParseIP("2001:db8::1"), Port: 443})
	if ip != "2001:db8::1" || port != 443 {
		t.Errorf("got %s %d", ip, port)
	}
}

func TestDecodePayload(t *testing.T) {
	t.Run("valid utf8 untouched", func(t *testing.T) {
		in := "GET / HTTP/1.1\r\nHost: ñandú\r\n"
		if got := DecodePayload([]byte(in)); got != in {
			t.Errorf("got %q", got)
		}
	})

	t.Run("invalid bytes replaced", func(t *testing.T) {
		got := DecodePayload([]byte{'S', 'S', 'H', 0xff, 0xfe, '-'})
		if !utf8.ValidString(got) {
			t.Fatalf("result is not valid utf8: %q", got)
		}
		if !strings.Contains(got, "\uFFFD") {
			t.Errorf("expected replacement character, got %q", got)
		}
		if !strings.HasPrefix(got, "SSH") || !strings.HasSuffix(got, "-") {
			t.Errorf("valid parts lost: %q", got)
		}
	})

	t.Run("truncated multibyte sequence", func(t *testing.T) {
		got := DecodePayload([]byte{'a', 0xe2, 0x82})
		if !utf8.ValidString(got) || !strings.HasPrefix(got, "a") {
			t.Errorf("got %q", got)
		}
	})
}

func TestMarshal_FieldOrder(t *testing.T) {
	r := Record{Timestamp: "2024-01-01T00:00:00Z", IPAddress: "10.0.0.1", Port: 4242, Data: "x"}
	b, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"timestamp":"2024-01-01T00:00:00Z","ip_address":"10.0.0.1","port":4242,"data":"x"}`
	if string(b) != want {
		t.Errorf("got  %s\nwant %s", b, want)
	}
}

func TestMarshalParse_RoundTrip(t *testing.T) {
	payloads := []string{
		"",
		"hello honeypot\n",
		"line1\nline2\r\n\x00\x01",
		"<script>alert('x')</script> & \"quotes\"",
		DecodePayload([]byte{0xc3, 0x28, 0xa0, 0xa1}),
	}
	for _, p := range payloads {
		r := Record{Timestamp: time.Now().UTC().Format(time.RFC3339Nano), IPAddress: "::1", Port: 65535, Data: p}
		b, err := r.Marshal()
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if bytes.ContainsAny(b, "\r\n") {
			t.Errorf("encoded line contains a raw newline: %q", b)
		}
		got, err := Parse(append(b, '\n'))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if got != r {
			t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", got, r)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse([]byte("  \n")); err != ErrEmptyLine {
		t.Errorf("expected ErrEmptyLine, got %v", err)
	}
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Error("expected error for malformed line")
	}
}
