package sink

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend persists one encoded record line (without trailing newline).
type Backend interface {
	Append(line []byte) error
}

// FileSink appends each line to Path with an open/append/close cycle, so
// the file can be rotated or removed underneath a running process.
type FileSink struct {
	Path string
	Perm os.FileMode
}

func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path, Perm: 0640}
}

// Prepare creates the parent directory of the sink file.
func (f *FileSink) Prepare() error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return fmt.Errorf("%w: create directory for %s: %v", ErrOpen, f.Path, err)
	}
	return nil
}

func (f *FileSink) Append(line []byte) error {
	perm := f.Perm
	if perm == 0 {
		perm = 0640
	}
	file, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpen, err)
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	// one write per record keeps O_APPEND lines whole
	_, werr := file.Write(buf)
	cerr := file.Close()
	if werr != nil {
		return fmt.Errorf("%w: %v", ErrWrite, werr)
	}
	if cerr != nil {
		return fmt.Errorf("%w: close: %v", ErrWrite, cerr)
	}
	return nil
}
