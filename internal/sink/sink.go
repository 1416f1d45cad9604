// Package sink implements the duck-typed log-stream capability called for
// by spec §9: "the source routes log records through an object that
// merely has a write-string operation." Here that capability is a minimal
// Sink interface, with a file-backed implementation and a channel-backed
// one that forwards lines to a local operator UI — mirroring Master's
// messageTap mirror described in spec §4.6.
package sink

import (
	"bufio"
	"io"
	"os"
	"sync"
)

// Sink is the minimal capability: something that can absorb one formatted
// line at a time. Anything satisfying this interface can be plugged into
// Multi and, through it, into logrus's output.
type Sink interface {
	WriteString(s string) error
}

// FileSink appends lines to an underlying file, flushing after each write
// so a tailing operator never sees a partial line.
type FileSink struct {
	mu sync.Mutex
	w  *bufio.Writer
	f  *os.File
}

// NewFileSink opens (creating/appending) the file at path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{w: bufio.NewWriter(f), f: f}, nil
}

func (s *FileSink) WriteString(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}

// UITap mirrors every line onto a bounded channel for a local operator
// view (spec §4.6's messageTap, generalized to log lines). Lines are
// dropped, never blocked on, if no one is reading — a slow or absent UI
// must never stall the server.
type UITap struct {
	ch chan string
}

// NewUITap creates a tap with the given channel buffer size.
func NewUITap(buffer int) *UITap {
	return &UITap{ch: make(chan string, buffer)}
}

func (t *UITap) WriteString(line string) error {
	select {
	case t.ch <- line:
	default:
	}
	return nil
}

// Lines returns the channel a local UI should range over.
func (t *UITap) Lines() <-chan string { return t.ch }

// Multi fans writes out to every configured Sink, satisfying io.Writer so
// it can be handed directly to logrus.Logger.SetOutput.
type Multi struct {
	sinks []Sink
}

// NewMulti builds a fan-out io.Writer over the given sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Write(p []byte) (int, error) {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.WriteString(string(p)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

var _ io.Writer = (*Multi)(nil)
