package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeAll(t *testing.T, w io.WriteCloser, s string) {
	t.Helper()
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}
	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_CreateAppendRead(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "every_bunch.txt")

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	w, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	writeAll(t, w, "turn 1\n")

	w, err = fs.Append(path)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	writeAll(t, w, "turn 2\n")

	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "turn 1\nturn 2\n" {
		t.Errorf("unexpected content %q", data)
	}

	info, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != int64(len(data)) {
		t.Errorf("size = %d, want %d", info.Size(), len(data))
	}

	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	f.Close()
}

func TestMemoryFileSystem_CreateTruncates(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, _ := mfs.Create("/out/a.txt")
	writeAll(t, w, "first")
	w, _ = mfs.Create("/out/a.txt")
	writeAll(t, w, "second")

	data, err := mfs.ReadFile("/out/a.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected 'second', got %q", data)
	}
}

func TestMemoryFileSystem_Append(t *testing.T) {
	mfs := NewMemoryFileSystem()

	for _, s := range []string{"a", "b", "c"} {
		w, err := mfs.Append("/log.txt")
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		writeAll(t, w, s)
	}

	data, _ := mfs.ReadFile("/log.txt")
	if string(data) != "abc" {
		t.Errorf("expected 'abc', got %q", data)
	}
}

func TestMemoryFileSystem_Open(t *testing.T) {
	mfs := NewMemoryFileSystem()
	w, _ := mfs.Create("/opentest.txt")
	writeAll(t, w, "open me")

	f, err := mfs.Open("/opentest.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "open me" {
		t.Errorf("expected 'open me', got %q", data)
	}
	info, err := f.Stat()
	if err != nil || info.Name() != "opentest.txt" || info.Size() != 7 {
		t.Errorf("unexpected stat %v %v", info, err)
	}

	if _, err := mfs.Open("/nonexistent.txt"); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestMemoryFileSystem_StatAndDirs(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.MkdirAll("/a/b/c", 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, d := range []string{"/a", "/a/b", "/a/b/c"} {
		if !mfs.Exists(d) {
			t.Errorf("expected %s to exist", d)
		}
	}
	info, err := mfs.Stat("/a/b")
	if err != nil || !info.IsDir() {
		t.Errorf("expected directory, got %v %v", info, err)
	}
	if _, err := mfs.Stat("/missing"); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestMemoryFileSystem_PathCleaning(t *testing.T) {
	mfs := NewMemoryFileSystem()
	w, _ := mfs.Create("/dir/../file.txt")
	writeAll(t, w, "x")

	if !mfs.Exists("/file.txt") {
		t.Error("expected cleaned path to exist")
	}
	if got := mfs.Files(); len(got) != 1 || got[0] != "/file.txt" {
		t.Errorf("Files() = %v", got)
	}
}

func TestMemoryFileSystem_WriteAfterClose(t *testing.T) {
	mfs := NewMemoryFileSystem()
	w, _ := mfs.Create("/x")
	w.Close()

	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("expected error writing to closed file")
	}
	if err := w.Close(); err == nil {
		t.Error("expected error closing twice")
	}
}
