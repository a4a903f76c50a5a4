package analyze

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

type Options struct {
	Top     int
	NoColor bool
	Source  string
}

type printer struct {
	w       io.Writer
	heading *color.Color
	dim     *color.Color
	hot     *color.Color
}

func newPrinter(w io.Writer, noColor bool) *printer {
	p := &printer{
		w:       w,
		heading: color.New(color.FgCyan, color.Bold),
		dim:     color.New(color.Faint),
		hot:     color.New(color.FgRed, color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.heading, p.dim, p.hot} {
			c.DisableColor()
		}
	}
	return p
}

// Write renders the report as plain text tables.
func (r *Report) Write(w io.Writer, opts Options) {
	p := newPrinter(w, opts.NoColor)
	top := opts.Top
	if top <= 0 {
		top = 20
	}

	rule := strings.Repeat("═", 62)
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "  %s\n", p.heading.Sprint("LURE INTERACTION REPORT"))
	if opts.Source != "" {
		fmt.Fprintf(w, "  %s\n", p.dim.Sprint(opts.Source))
	}
	fmt.Fprintf(w, "%s\n", rule)

	p.section("Summary")
	rows := [][]string{
		{"interactions", strconv.Itoa(r.Total)},
		{"unique sources", strconv.Itoa(len(r.Sources))},
		{"silent", fmt.Sprintf("%d (%s)", r.Empty, percent(r.Empty, r.Total))},
		{"bytes captured", strconv.Itoa(r.Bytes)},
		{"malformed lines", strconv.Itoa(r.Malformed)},
	}
	if !r.First.IsZero() {
		rows = append(rows,
			[]string{"first seen", r.First.Format("2006-01-02 15:04:05 UTC")},
			[]string{"last seen", r.Last.Format("2006-01-02 15:04:05 UTC")},
		)
	}
	p.table([]string{"metric", "value"}, rows)

	if r.Total == 0 {
		fmt.Fprintf(w, "\n%s\n", p.dim.Sprint("no interactions recorded"))
		return
	}

	p.section(fmt.Sprintf("Top %d sources", top))
	rows = rows[:0]
	for i, e := range r.Sources.topN(top) {
		count := strconv.Itoa(e.V)
		if i == 0 {
			count = p.hot.Sprint(count)
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), e.K, count, percent(e.V, r.Total)})
	}
	p.table([]string{"#", "source", "count", "share"}, rows)

	p.section("Protocols")
	rows = rows[:0]
	for _, e := range r.Kinds.topN(0) {
		rows = append(rows, []string{e.K, strconv.Itoa(e.V), percent(e.V, r.Total)})
	}
	p.table([]string{"protocol", "count", "share"}, rows)

	if len(r.Payloads) > 0 {
		p.section(fmt.Sprintf("Top %d first lines", top))
		rows = rows[:0]
		for _, e := range r.Payloads.topN(top) {
			rows = append(rows, []string{strconv.Itoa(e.V), quoted(e.K, 60)})
		}
		p.table([]string{"count", "payload"}, rows)
	}

	p.section("Activity by hour (UTC)")
	rows = rows[:0]
	for h := range 24 {
		key := fmt.Sprintf("%02d", h)
		n := r.Hours[key]
		if n == 0 {
			continue
		}
		bar := strings.Repeat("█", max(1, n*40/r.maxHour()))
		rows = append(rows, []string{key + ":00", strconv.Itoa(n), bar})
	}
	p.table([]string{"hour", "count", ""}, rows)
}

func (r *Report) maxHour() int {
	m := 1
	for _, n := range r.Hours {
		m = max(m, n)
	}
	return m
}

func (p *printer) section(title string) {
	fmt.Fprintf(p.w, "\n%s\n%s\n", p.heading.Sprint(title), strings.Repeat("─", utf8.RuneCountInString(title)))
}

func (p *printer) table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], visibleWidth(cell))
			}
		}
	}
	sep := make([]string, len(headers))
	for i, w := range widths {
		sep[i] = strings.Repeat("─", w)
	}
	row2line := func(cells []string) string {
		parts := make([]string, len(headers))
		for i := range headers {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = cell + strings.Repeat(" ", widths[i]-visibleWidth(cell))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	fmt.Fprintln(p.w, row2line(headers))
	fmt.Fprintln(p.w, strings.Join(sep, "  "))
	for _, row := range rows {
		fmt.Fprintln(p.w, row2line(row))
	}
}

// visibleWidth ignores ANSI colour sequences.
func visibleWidth(s string) int {
	n := 0
	for i := 0; i < len(s); {
		if s[i] == 0x1b {
			if j := strings.IndexByte(s[i:], 'm'); j >= 0 {
				i += j + 1
				continue
			}
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n++
	}
	return n
}
