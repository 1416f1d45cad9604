package sink

import (
	"os"
	"path/filepath"
	"testing"
)

type recordingSink struct {
	lines []string
}

func (r *recordingSink) WriteString(s string) error {
	r.lines = append(r.lines, s)
	return nil
}

func TestMultiFansOutToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMulti(a, b)

	if _, err := m.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(a.lines) != 1 || a.lines[0] != "hello\n" {
		t.Fatalf("sink a = %v", a.lines)
	}
	if len(b.lines) != 1 || b.lines[0] != "hello\n" {
		t.Fatalf("sink b = %v", b.lines)
	}
}

func TestUITapDropsWhenFull(t *testing.T) {
	tap := NewUITap(1)
	if err := tap.WriteString("first"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := tap.WriteString("second"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	got := <-tap.Lines()
	if got != "first" {
		t.Fatalf("got %q, want %q (second should have been dropped, not queued)", got, "first")
	}
}

func TestFileSinkAppendsAndFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	fs, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := fs.WriteString("line one\n"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "line one\n" {
		t.Fatalf("file contents = %q, want %q", got, "line one\n")
	}
}
