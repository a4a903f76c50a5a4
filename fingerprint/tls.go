// Package fingerprint extracts identifying details from the raw first bytes
// a client sends. Scanners that speak TLS to every port give away their
// target name and ALPN list in the ClientHello.
package fingerprint

import (
	"github.com/daniellavrushin/lure/log"
)

const (
	recordHandshake   = 0x16
	handshakeHello    = 0x01
	extServerName     = 0x0000
	extALPN           = 0x0010
	extECH            = 0xfe0d
	extECHOuter       = 0xfd00
	maxServerNameSize = 255
)

// ClientHello is what was recovered from a (possibly truncated) TLS
// ClientHello. Any field may be empty.
type ClientHello struct {
	Version    uint16   `json:"version"`
	ServerName string   `json:"server_name,omitempty"`
	ALPN       []string `json:"alpn,omitempty"`
	ECH        bool     `json:"ech,omitempty"`
}

// reader is a bounds-checked cursor; once a read fails every later read fails.
type reader struct {
	b   []byte
	bad bool
}

func (r *reader) u8() int {
	if r.bad || len(r.b) < 1 {
		r.bad = true
		return 0
	}
	v := int(r.b[0])
	r.b = r.b[1:]
	return v
}

func (r *reader) u16() int {
	if r.bad || len(r.b) < 2 {
		r.bad = true
		return 0
	}
	v := int(r.b[0])<<8 | int(r.b[1])
	r.b = r.b[2:]
	return v
}

func (r *reader) u24() int {
	hi := r.u8()
	return hi<<16 | r.u16()
}

func (r *reader) bytes(n int) []byte {
	if r.bad || n < 0 || len(r.b) < n {
		r.bad = true
		return nil
	}
	v := r.b[:n]
	r.b = r.b[n:]
	return v
}

// rest returns up to n bytes, tolerating truncation.
func (r *reader) rest(n int) []byte {
	if r.bad {
		return nil
	}
	n = min(n, len(r.b))
	return r.bytes(n)
}

// ParseClientHello reports whether b starts with a TLS handshake record
// carrying a ClientHello. Truncated hellos are parsed as far as they go;
// a single read often stops short of the extensions block.
func ParseClientHello(b []byte) (ClientHello, bool) {
	rec := &reader{b: b}
	if rec.u8() != recordHandshake {
		return ClientHello{}, false
	}
	rec.u16() // legacy record version
	body := &reader{b: rec.rest(rec.u16())}
	if rec.bad {
		return ClientHello{}, false
	}

	if body.u8() != handshakeHello {
		return ClientHello{}, false
	}
	hs := &reader{b: body.rest(body.u24())}
	if body.bad {
		return ClientHello{}, false
	}

	var hello ClientHello
	hello.Version = uint16(hs.u16())
	hs.bytes(32)       // random
	hs.bytes(hs.u8())  // session id
	hs.bytes(hs.u16()) // cipher suites
	hs.bytes(hs.u8())  // compression methods
	if hs.bad {
		// still a ClientHello, just cut before the extensions
		return hello, hello.Version != 0
	}

	exts := &reader{b: hs.rest(hs.u16())}
	for len(exts.b) >= 4 {
		typ := exts.u16()
		data := exts.bytes(exts.u16())
		if exts.bad {
			log.Tracef("TLS: truncated extension %#04x", typ)
			break
		}
		switch typ {
		case extServerName:
			hello.ServerName = serverName(data)
		case extALPN:
			hello.ALPN = alpn(data)
		case extECH, extECHOuter:
			hello.ECH = true
		}
	}
	return hello, true
}

func serverName(ed []byte) string {
	r := &reader{b: ed}
	list := &reader{b: r.bytes(r.u16())}
	for !list.bad && len(list.b) >= 3 {
		nameType := list.u8()
		name := list.bytes(list.u16())
		if list.bad {
			break
		}
		if nameType == 0 && validServerName(name) {
			return string(name)
		}
	}
	return ""
}

func validServerName(name []byte) bool {
	if len(name) == 0 || len(name) > maxServerNameSize {
		return false
	}
	for _, b := range name {
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		case b == '-' || b == '.' || b == '_':
		default:
			return false
		}
	}
	return true
}

func alpn(ed []byte) []string {
	r := &reader{b: ed}
	list := &reader{b: r.bytes(r.u16())}
	var out []string
	for !list.bad && len(list.b) > 0 {
		proto := list.bytes(list.u8())
		if list.bad || len(proto) == 0 {
			break
		}
		out = append(out, string(proto))
	}
	return out
}
