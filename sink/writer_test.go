package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/daniellavrushin/lure/interaction"
)

func testRecord(i int) interaction.Record {
	return interaction.Record{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		IPAddress: "198.51.100.1",
		Port:      uint16(40000 + i),
		Data:      fmt.Sprintf("payload %d\n", i),
	}
}

func readLines(t *testing.T, path string) []interaction.Record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []interaction.Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		r, err := interaction.Parse(sc.Bytes())
		if err != nil {
			t.Fatalf("line %q does not parse: %v", sc.Text(), err)
		}
		out = append(out, r)
	}
	return out
}

func closeWriter(t *testing.T, w *Writer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestFileSink_AppendCreates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "honeypot.log")
	fs := NewFileSink(path)
	if err := fs.Prepare(); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := fs.Append([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := fs.Append([]byte(`{"a":2}`)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{\"a\":1}\n{\"a\":2}\n" {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestFileSink_OpenError(t *testing.T) {
	fs := NewFileSink(filepath.Join(t.TempDir(), "missing-dir", "x.log"))
	err := fs.Append([]byte("x"))
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
}

func TestWriter_ConcurrentPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "honeypot.log")
	w := NewWriter(NewFileSink(path), 512)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.Persist(testRecord(i))
		}(i)
	}
	wg.Wait()
	closeWriter(t, w)

	recs := readLines(t, path)
	if len(recs) != n {
		t.Fatalf("expected %d lines, got %d", n, len(recs))
	}
	seen := make(map[uint16]bool)
	for _, r := range recs {
		if seen[r.Port] {
			t.Errorf("duplicate record for port %d", r.Port)
		}
		seen[r.Port] = true
		if want := fmt.Sprintf("payload %d\n", int(r.Port)-40000); r.Data != want {
			t.Errorf("port %d: data %q, want %q", r.Port, r.Data, want)
		}
	}
	if w.Written() != n || w.Dropped() != 0 {
		t.Errorf("written=%d dropped=%d", w.Written(), w.Dropped())
	}
}

type blockingBackend struct {
	release chan struct{}
	mu      sync.Mutex
	lines   [][]byte
}

func (b *blockingBackend) Append(line []byte) error {
	<-b.release
	b.mu.Lock()
	b.lines = append(b.lines, append([]byte(nil), line...))
	b.mu.Unlock()
	return nil
}

func TestWriter_QueueFullDrops(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	w := NewWriter(backend, 1)

	var mu sync.Mutex
	var reasons []error
	w.OnError(func(_ interaction.Record, err error) {
		mu.Lock()
		reasons = append(reasons, err)
		mu.Unlock()
	})

	// the first record may be picked up by the writer goroutine, the second
	// fills the queue, so by the fourth at least one drop has happened
	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			w.Persist(testRecord(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Persist blocked on a full queue")
	}

	close(backend.release)
	closeWriter(t, w)

	if w.Dropped() == 0 {
		t.Fatal("expected dropped records")
	}
	if w.Written()+w.Dropped() != 4 {
		t.Errorf("written=%d dropped=%d, want sum 4", w.Written(), w.Dropped())
	}
	mu.Lock()
	defer mu.Unlock()
	for _, err := range reasons {
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("unexpected drop reason %v", err)
		}
	}
}

func TestWriter_PersistAfterClose(t *testing.T) {
	w := NewWriter(NewFileSink(filepath.Join(t.TempDir(), "x.log")), 4)
	closeWriter(t, w)

	var got error
	w.OnError(func(_ interaction.Record, err error) { got = err })
	w.Persist(testRecord(1))
	if !errors.Is(got, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", got)
	}
	// a second Close must not panic
	closeWriter(t, w)
}

func TestWriter_ObserversSeePersistedLine(t *testing.T) {
	w := NewWriter(NewFileSink(filepath.Join(t.TempDir(), "x.log")), 4)
	seen := make(chan string, 1)
	w.Subscribe(func(rec interaction.Record, line []byte) {
		seen <- string(line)
	})
	rec := testRecord(7)
	w.Persist(rec)
	closeWriter(t, w)

	want, _ := rec.Marshal()
	select {
	case line := <-seen:
		if line != string(want) {
			t.Errorf("observer got %q, want %q", line, want)
		}
	default:
		t.Fatal("observer was not called")
	}
}

func TestWriter_SinkErrorDropsRecord(t *testing.T) {
	w := NewWriter(NewFileSink(filepath.Join(t.TempDir(), "missing", "x.log")), 4)
	errs := make(chan error, 1)
	w.OnError(func(_ interaction.Record, err error) { errs <- err })
	w.Persist(testRecord(1))
	closeWriter(t, w)

	select {
	case err := <-errs:
		if !errors.Is(err, ErrOpen) {
			t.Errorf("expected ErrOpen, got %v", err)
		}
	default:
		t.Fatal("expected sink error")
	}
	if w.Written() != 0 || w.Dropped() != 1 {
		t.Errorf("written=%d dropped=%d", w.Written(), w.Dropped())
	}
}
