package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}

	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_AppendAndReadAt(t *testing.T) {
	fsys := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "a.dat")

	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := f.Write([]byte("world")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	buf := make([]byte, 5)
	if _, err := f.ReadAt(buf, 6); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if string(buf) != "world" {
		t.Errorf("ReadAt = %q, want %q", buf, "world")
	}
}

func TestOSFileSystem_RenameAndReadDir(t *testing.T) {
	fsys := OSFileSystem{}
	dir := t.TempDir()

	if err := fsys.WriteFile(filepath.Join(dir, "x.tmp"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := fsys.Rename(filepath.Join(dir, "x.tmp"), filepath.Join(dir, "x")); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "x" {
		t.Fatalf("unexpected entries %v", entries)
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	err := mfs.WriteFile("/test.txt", testData, 0644)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}
}

func TestMemoryFileSystem_OpenFileAppend(t *testing.T) {
	mfs := NewMemoryFileSystem()

	f, err := mfs.OpenFile("/trip/primary/a.dat", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if _, err := f.Write([]byte("abc")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// A second handle appends after the first.
	g, err := mfs.OpenFile("/trip/primary/a.dat", os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if _, err := g.Write([]byte("def")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	g.Close()

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 2)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if string(buf[:n]) != "cdef" {
		t.Errorf("ReadAt = %q, want %q", buf[:n], "cdef")
	}

	n, err = f.ReadAt(buf, 4)
	if !errors.Is(err, io.EOF) || string(buf[:n]) != "ef" {
		t.Errorf("short ReadAt = %q, %v", buf[:n], err)
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 6 {
		t.Errorf("Size() = %d, want 6", info.Size())
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := f.Write([]byte("x")); err == nil {
		t.Error("expected write after close to fail")
	}
}

func TestMemoryFileSystem_OpenFileMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()

	_, err := mfs.OpenFile("/missing", os.O_RDONLY, 0)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_Truncate(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/f", []byte("0123456789"), 0644)

	if err := mfs.Truncate("/f", 4); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	data, _ := mfs.ReadFile("/f")
	if string(data) != "0123" {
		t.Errorf("after truncate got %q", data)
	}

	if err := mfs.Truncate("/nope", 0); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_ReadDir(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.MkdirAll("/trip/secondary", 0755)
	mfs.MkdirAll("/trip/primary", 0755)
	mfs.WriteFile("/trip/LOG_CONFIG", []byte("{}"), 0644)
	mfs.WriteFile("/trip/primary/a.dat", nil, 0644)

	entries, err := mfs.ReadDir("/trip")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := []string{"LOG_CONFIG", "primary", "secondary"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if !entries[1].IsDir() {
		t.Error("primary should be a directory")
	}

	empty, err := mfs.ReadDir("/trip/secondary")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty dir, got %d entries", len(empty))
	}

	if _, err := mfs.ReadDir("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_Rename(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/a.tmp", []byte("new"), 0644)
	mfs.WriteFile("/a", []byte("old"), 0644)

	if err := mfs.Rename("/a.tmp", "/a"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if mfs.Exists("/a.tmp") {
		t.Error("old path still exists")
	}
	data, _ := mfs.ReadFile("/a")
	if string(data) != "new" {
		t.Errorf("got %q, want %q", data, "new")
	}

	if err := mfs.Rename("/missing", "/b"); err == nil {
		t.Error("expected error renaming missing file")
	}
}

func TestMemoryFileSystem_RemoveAndRemoveAll(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.MkdirAll("/dir/sub", 0755)
	mfs.WriteFile("/dir/sub/file.txt", []byte("x"), 0644)

	if err := mfs.Remove("/dir/sub"); err == nil {
		t.Error("expected error removing non-empty directory")
	}
	if err := mfs.Remove("/dir/sub/file.txt"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := mfs.Remove("/dir/sub"); err != nil {
		t.Fatalf("Remove of empty dir failed: %v", err)
	}

	mfs.WriteFile("/dir/other.txt", []byte("y"), 0644)
	if err := mfs.RemoveAll("/dir"); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if mfs.Exists("/dir") || mfs.Exists("/dir/other.txt") {
		t.Error("RemoveAll left entries behind")
	}
	if err := mfs.Remove("/dir"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_Stat(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.MkdirAll("/d", 0755)
	mfs.WriteFile("/d/f", []byte("abc"), 0600)

	info, err := mfs.Stat("/d/f")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 3 || info.IsDir() || info.Name() != "f" {
		t.Errorf("unexpected file info %+v", info)
	}

	dinfo, err := mfs.Stat("/d")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !dinfo.IsDir() {
		t.Error("expected directory")
	}
}
