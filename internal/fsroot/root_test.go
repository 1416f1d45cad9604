package fsroot

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestRoot(t *testing.T) *Root {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "hello.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	root, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = root.Close() })
	return root
}

func TestResolveRejectsEscape(t *testing.T) {
	root := newTestRoot(t)
	for _, p := range []string{"/../../etc/passwd", "/sub/../../etc/passwd", "../outside"} {
		if _, err := root.Resolve(p); err != ErrEscapesRoot {
			t.Fatalf("Resolve(%q) error = %v, want ErrEscapesRoot", p, err)
		}
	}
}

func TestResolveAcceptsWithinRoot(t *testing.T) {
	root := newTestRoot(t)
	rel, err := root.Resolve("/sub/hello.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !root.Exists(rel) {
		t.Fatalf("expected %q to exist", rel)
	}
}

func TestCreateRejectsExistingFile(t *testing.T) {
	root := newTestRoot(t)
	rel, err := root.Resolve("/sub/hello.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := root.Create(rel); !os.IsExist(err) {
		t.Fatalf("Create error = %v, want os.ErrExist", err)
	}
}

func TestReadDirListsEntries(t *testing.T) {
	root := newTestRoot(t)
	entries, err := root.ReadDir(".")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "sub" {
		t.Fatalf("entries = %v, want [sub]", entries)
	}
}
