package transcript

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
)

func TestFileLoggerPlainName(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "session")
	l, err := NewFile(prefix, false)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer func() { _ = l.Close() }()

	if got, want := l.Path(), prefix+".log"; got != want {
		t.Fatalf("Path() = %q, want %q", got, want)
	}
}

func TestFileLoggerStampedName(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFile(filepath.Join(dir, "session"), true)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer func() { _ = l.Close() }()

	base := filepath.Base(l.Path())
	if ok, _ := regexp.MatchString(`^session_\d{14}\.log$`, base); !ok {
		t.Fatalf("stamped name = %q, want session_YYYYMMDDHHMMSS.log", base)
	}
}

func TestFileLoggerWritesStampedLines(t *testing.T) {
	l, err := NewFile(filepath.Join(t.TempDir(), "session"), false)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	l.Write("hello", "TX")
	l.Write("world", "RX")
	path := l.Path()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), string(data))
	}
	lineRe := regexp.MustCompile(`^\d+:(TX|RX):(hello|world)$`)
	for _, line := range lines {
		if !lineRe.MatchString(line) {
			t.Fatalf("malformed line %q", line)
		}
	}
}

func TestFileLoggerConcurrentWritesStayWhole(t *testing.T) {
	l, err := NewFile(filepath.Join(t.TempDir(), "session"), false)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				l.Write("payload", "RX")
			}
		}()
	}
	wg.Wait()
	path := l.Path()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != writers*perWriter {
		t.Fatalf("got %d lines, want %d", len(lines), writers*perWriter)
	}
	lineRe := regexp.MustCompile(`^\d+:RX:payload$`)
	for _, line := range lines {
		if !lineRe.MatchString(line) {
			t.Fatalf("torn line %q", line)
		}
	}
}
