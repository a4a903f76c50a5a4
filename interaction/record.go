// Package interaction defines the record captured for every accepted
// connection and its one-line JSON encoding.
package interaction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// Record is one captured interaction. Field order is the on-disk order.
type Record struct {
	Timestamp string `json:"timestamp"`
	IPAddress string `json:"ip_address"`
	Port      uint16 `json:"port"`
	Data      string `json:"data"`
}

// New builds a record for peer stamped with now in UTC.
func New(now time.Time, peer net.Addr, payload []byte) Record {
	ip, port := SplitPeer(peer)
	return Record{
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		IPAddress: ip,
		Port:      port,
		Data:      DecodePayload(payload),
	}
}

// SplitPeer extracts the IP string and port from a TCP peer address.
func SplitPeer(addr net.Addr) (string, uint16) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String(), uint16(a.Port)
	case nil:
		return "", 0
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, _ := strconv.ParseUint(portStr, 10, 16)
	return host, uint16(port)
}

// DecodePayload turns raw bytes into valid UTF-8, replacing invalid
// sequences with U+FFFD. It never fails.
func DecodePayload(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("\uFFFD")))
	}
	return string(out)
}

var ErrEmptyLine = errors.New("empty record line")

// Marshal encodes r as a single JSON line without the trailing newline.
// The output never contains a raw newline.
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Parse decodes one line written by Marshal.
func Parse(line []byte) (Record, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return Record{}, ErrEmptyLine
	}
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, fmt.Errorf("parse record: %w", err)
	}
	return r, nil
}

// Time parses the record timestamp.
func (r Record) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.Timestamp)
}
