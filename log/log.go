package log

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"log/syslog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the minimum level that will be emitted.
type Level int32

const (
	LevelSilent Level = iota - 1
	LevelError
	LevelWarn
	LevelInfo
	LevelTrace
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelSilent:
		return "silent"
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	}
	return fmt.Sprintf("level(%d)", int32(l))
}

// ParseLevel maps a --verbose value to a Level. Unknown names fall back to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "trace":
		return LevelTrace
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "silent":
		return LevelSilent
	default:
		return LevelInfo
	}
}

var (
	CurLevel atomic.Int32

	errMu     sync.Mutex
	errFile   *os.File
	errLogger *log.Logger

	origStderr = os.Stderr
)

// fanout writes every line to all sinks; a failing sink does not stop the others.
type fanout struct {
	mu    sync.Mutex
	sinks []io.Writer
}

func (f *fanout) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.sinks {
		_, _ = w.Write(p)
	}
	return len(p), nil
}

var (
	mu         sync.Mutex
	base       = &fanout{sinks: []io.Writer{os.Stderr}}
	buf        *bufio.Writer
	logger     *log.Logger
	flushTimer *time.Ticker
	insta      = true
)

func init() {
	CurLevel.Store(int32(LevelInfo))
}

// Init replaces the sinks, sets the level and the buffering mode.
func Init(w io.Writer, level Level, instaflush bool) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	base.mu.Lock()
	base.sinks = []io.Writer{w}
	base.mu.Unlock()
	insta = instaflush
	CurLevel.Store(int32(level))
	rebuildLocked()
}

// Attach adds an extra sink next to the current ones.
func Attach(w io.Writer) {
	if w == nil {
		return
	}
	base.mu.Lock()
	base.sinks = append(base.sinks, w)
	base.mu.Unlock()
}

// EnableSyslog connects to the local syslog daemon and attaches it as a sink.
func EnableSyslog(tag string) error {
	sw, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, tag)
	if err != nil {
		return err
	}
	Attach(sw)
	return nil
}

// OrigStderr is the process stderr as it was before any redirection.
func OrigStderr() io.Writer { return origStderr }

func SetLevel(l Level) { CurLevel.Store(int32(l)) }

func GetLevel() Level { return Level(CurLevel.Load()) }

// SetInstaflush toggles line buffering. Enabling it flushes pending output.
func SetInstaflush(v bool) {
	mu.Lock()
	defer mu.Unlock()
	if insta == v {
		return
	}
	if buf != nil && v {
		_ = buf.Flush()
	}
	insta = v
	rebuildLocked()
}

func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if buf != nil {
		_ = buf.Flush()
	}
}

// InitErrorFile mirrors every Errorf line into path, independent of the level.
func InitErrorFile(path string) error {
	if path == "" {
		return nil
	}
	errMu.Lock()
	defer errMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create error log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if errFile != nil {
		_ = errFile.Close()
	}
	errFile = f
	errLogger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return nil
}

func CloseErrorFile() {
	errMu.Lock()
	defer errMu.Unlock()
	if errFile != nil {
		_ = errFile.Sync()
		_ = errFile.Close()
		errFile = nil
		errLogger = nil
	}
}

// ---- printing ------------------------------------------------------------

// Errorf logs at error level and returns the formatted message as an error,
// so call sites can write `return log.Errorf(...)`. %w verbs are preserved.
func Errorf(format string, a ...any) error {
	err := fmt.Errorf(format, a...)
	if enabled(LevelError) {
		out("[ERROR] %s", err.Error())
	}

	errMu.Lock()
	if errLogger != nil {
		errLogger.Println("[ERROR] " + err.Error())
	}
	errMu.Unlock()

	return err
}

func Warnf(format string, a ...any) {
	if enabled(LevelWarn) {
		out("[WARN] "+format, a...)
	}
}

func Infof(format string, a ...any) {
	if enabled(LevelInfo) {
		out("[INFO] "+format, a...)
	}
}

func Tracef(format string, a ...any) {
	if enabled(LevelTrace) {
		out("[TRACE] "+format, a...)
	}
}

func Debugf(format string, a ...any) {
	if enabled(LevelDebug) {
		out("[DEBUG] "+format, a...)
	}
}

func enabled(l Level) bool { return Level(CurLevel.Load()) >= l }

func out(format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		rebuildLocked()
	}
	logger.Printf(format, a...)
}

// ---- internals -----------------------------------------------------------

func rebuildLocked() {
	stopFlusherLocked()
	if insta {
		buf = nil
		logger = log.New(base, "", log.Ldate|log.Ltime|log.Lmicroseconds)
		return
	}
	buf = bufio.NewWriterSize(base, 16*1024)
	logger = log.New(buf, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	startFlusherLocked()
}

func startFlusherLocked() {
	flushTimer = time.NewTicker(2 * time.Second)
	go func(t *time.Ticker) {
		for range t.C {
			mu.Lock()
			if buf != nil {
				_ = buf.Flush()
			}
			mu.Unlock()
		}
	}(flushTimer)
}

func stopFlusherLocked() {
	if flushTimer != nil {
		flushTimer.Stop()
		flushTimer = nil
	}
}
