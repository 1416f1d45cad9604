package transfer

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lanhub/lanhub/internal/fsroot"
)

func newTestRoot(t *testing.T) *fsroot.Root {
	t.Helper()
	dir := t.TempDir()
	root, err := fsroot.Open(dir)
	if err != nil {
		t.Fatalf("fsroot.Open: %v", err)
	}
	t.Cleanup(func() { _ = root.Close() })
	return root
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestDownloadEndpointStreamsFile(t *testing.T) {
	root := newTestRoot(t)
	if err := os.WriteFile(filepath.Join(root.AbsPath(), "file.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ep, port, err := New(Download, root, "file.txt", 11, 0, net.IPv4(127, 0, 0, 1), nil, testLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go ep.Serve()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	got, err := io.ReadAll(io.LimitReader(conn, 11))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
	// Drain/fin handshake: the client sends one byte to release the server.
	if _, err := conn.Write([]byte{0}); err != nil {
		t.Fatalf("write fin byte: %v", err)
	}
}

func TestUploadEndpointWritesFileToDisk(t *testing.T) {
	root := newTestRoot(t)

	ep, port, err := New(Upload, root, "incoming.bin", 4, 0, net.IPv4(127, 0, 0, 1), nil, testLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go ep.Serve()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if _, err := conn.Write([]byte("data")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.Close()

	time.Sleep(100 * time.Millisecond)
	got, err := os.ReadFile(filepath.Join(root.AbsPath(), "incoming.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "data" {
		t.Fatalf("got %q, want %q", got, "data")
	}
}

