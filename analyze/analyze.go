// Package analyze summarizes a sink file offline: who connected, what they
// sent first, and when.
package analyze

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/daniellavrushin/lure/interaction"
)

const maxLine = 1 << 20

type counter map[string]int

func (c counter) topN(n int) []kv {
	kvs := make([]kv, 0, len(c))
	for k, v := range c {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].V != kvs[j].V {
			return kvs[i].V > kvs[j].V
		}
		return kvs[i].K < kvs[j].K
	})
	if n > 0 && len(kvs) > n {
		kvs = kvs[:n]
	}
	return kvs
}

type kv struct {
	K string
	V int
}

// Report is the aggregate over every parseable line of a sink file.
type Report struct {
	Total     int
	Empty     int
	Malformed int
	First     time.Time
	Last      time.Time

	Sources  counter
	Kinds    counter
	Payloads counter
	Hours    counter
	Bytes    int
}

func newReport() *Report {
	return &Report{
		Sources:  counter{},
		Kinds:    counter{},
		Payloads: counter{},
		Hours:    counter{},
	}
}

// Load reads JSON lines from r. Lines that do not parse are counted and
// skipped so a partially written tail does not hide the rest of the file.
func Load(r io.Reader) (*Report, error) {
	rep := newReport()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		rec, err := interaction.Parse(sc.Bytes())
		if errors.Is(err, interaction.ErrEmptyLine) {
			continue
		}
		if err != nil {
			rep.Malformed++
			continue
		}
		rep.add(rec)
	}
	return rep, sc.Err()
}

func LoadFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (r *Report) add(rec interaction.Record) {
	r.Total++
	r.Bytes += len(rec.Data)
	r.Sources[rec.IPAddress]++
	r.Kinds[Classify(rec.Data)]++

	if rec.Data == "" {
		r.Empty++
	} else {
		r.Payloads[firstLine(rec.Data)]++
	}

	if ts, err := rec.Time(); err == nil {
		ts = ts.UTC()
		if r.First.IsZero() || ts.Before(r.First) {
			r.First = ts
		}
		if ts.After(r.Last) {
			r.Last = ts
		}
		r.Hours[ts.Format("15")]++
	}
}

// Classify guesses the client protocol from the first bytes it sent.
func Classify(data string) string {
	switch {
	case data == "":
		return "silent"
	case strings.HasPrefix(data, "SSH-"):
		return "ssh"
	case isHTTP(data):
		return "http"
	case data[0] == 0x16:
		return "tls"
	case strings.HasPrefix(data, "\x03\x00"):
		return "rdp"
	case strings.HasPrefix(data, "*") || strings.HasPrefix(strings.ToUpper(data), "PING"):
		return "redis"
	default:
		return "other"
	}
}

var httpMethods = []string{"GET ", "POST ", "HEAD ", "PUT ", "DELETE ", "OPTIONS ", "CONNECT ", "PRI * "}

func isHTTP(data string) bool {
	for _, m := range httpMethods {
		if strings.HasPrefix(data, m) {
			return true
		}
	}
	return false
}

func firstLine(data string) string {
	if i := strings.IndexAny(data, "\r\n"); i >= 0 {
		data = data[:i]
	}
	return data
}

// quoted makes control bytes visible and bounds the cell width.
func quoted(s string, limit int) string {
	q := strconv.QuoteToGraphic(s)
	if r := []rune(q); len(r) > limit {
		return string(r[:limit-3]) + "..."
	}
	return q
}

func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
