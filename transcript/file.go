package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const fileStampLayout = "20060102150405"

// FileLogger mirrors every line to standard output and appends it to a log
// file. Lines carry the `<unix-ns>:<tag>:<message>` stamp so transcripts stay
// ordered and attributable after the session ends.
type FileLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewFile opens `<prefix>.log`, or `<prefix>_<YYYYMMDDHHMMSS>.log` when
// stamped is true, creating parent directories as needed. The returned logger
// owns the file until Close.
func NewFile(prefix string, stamped bool) (*FileLogger, error) {
	name := prefix
	if stamped {
		name += "_" + time.Now().Format(fileStampLayout)
	}
	name += ".log"

	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	file, err := os.OpenFile(filepath.Clean(name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open transcript file: %w", err)
	}

	return &FileLogger{file: file}, nil
}

func (l *FileLogger) Write(message, tag string) {
	line := stamp(message, tag)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(os.Stdout, line)
	if l.file != nil {
		_, _ = l.file.WriteString(line)
	}
}

// Close releases the underlying file exactly once; later calls are no-ops.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil

	return err
}

// Path reports the file the logger writes to, or "" after Close.
func (l *FileLogger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ""
	}

	return l.file.Name()
}
