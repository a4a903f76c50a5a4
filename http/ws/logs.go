package ws

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

var (
	logHub    *Hub
	logOnce   sync.Once
	logWriter *broadcastWriter
)

// GetLogHub returns the singleton log hub
func GetLogHub() *Hub {
	logOnce.Do(func() {
		logHub = NewHub("logs")
		logWriter = &broadcastWriter{h: logHub}
	})
	return logHub
}

// broadcastWriter turns a byte stream into one hub message per line.
type broadcastWriter struct {
	h   *Hub
	mu  sync.Mutex
	buf []byte
}

func (w *broadcastWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf = append(w.buf, p...)
	start := 0
	for {
		i := bytes.IndexByte(w.buf[start:], '\n')
		if i < 0 {
			break
		}
		end := start + i
		line := make([]byte, end-start)
		copy(line, w.buf[start:end])
		w.h.Broadcast(line)
		start = end + 1
	}
	if start > 0 {
		w.buf = append([]byte{}, w.buf[start:]...)
	}
	w.mu.Unlock()
	return len(p), nil
}

// LogWriter returns a writer that broadcasts to all connected WebSocket clients
func LogWriter() io.Writer {
	GetLogHub()
	return logWriter
}

func HandleLogsWebSocket(w http.ResponseWriter, r *http.Request) {
	GetLogHub().ServeHTTP(w, r)
}
