package fsstore

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/je4/utils/v2/pkg/zLogger"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
	"github.com/ocfl-archive/ocflkit/pkg/storage"
	"github.com/rs/zerolog"
)

func testFS(t *testing.T) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	l := zerolog.Nop()
	var logger zLogger.ZLogger = &l
	ofs, err := NewFS(dir, logger)
	if err != nil {
		t.Fatalf("NewFS(%s) - %v", dir, err)
	}
	return ofs, dir
}

func TestWriteRead(t *testing.T) {
	ofs, _ := testFS(t)
	if err := ofs.Write("a/b/f.txt", []byte("hello"), ""); err != nil {
		t.Fatalf("Write - %v", err)
	}
	content, err := ofs.ReadToString("a/b/f.txt")
	if err != nil {
		t.Fatalf("ReadToString - %v", err)
	}
	if content != "hello" {
		t.Errorf("read '%s' != 'hello'", content)
	}
	err = ofs.Write("a/b/f.txt", []byte("again"), "")
	if !ocflerrors.Is(err, ocflerrors.ErrAlreadyExists) {
		t.Errorf("second write should fail with ErrAlreadyExists, got %v", err)
	}
}

func TestReadNotFound(t *testing.T) {
	ofs, _ := testFS(t)
	if _, err := ofs.Read("nothing"); !ocflerrors.Is(err, ocflerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := ofs.ListDirectory("nothing"); !ocflerrors.Is(err, ocflerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListDirectory(t *testing.T) {
	ofs, _ := testFS(t)
	for _, f := range []string{"d/f1", "d/f2", "d/sub/f3"} {
		if err := ofs.Write(f, []byte("x"), ""); err != nil {
			t.Fatalf("Write(%s) - %v", f, err)
		}
	}
	listings, err := ofs.ListDirectory("d")
	if err != nil {
		t.Fatalf("ListDirectory - %v", err)
	}
	want := []storage.Listing{
		storage.FileListing("f1"),
		storage.FileListing("f2"),
		storage.DirectoryListing("sub"),
	}
	if len(listings) != len(want) {
		t.Fatalf("got %d listings, want %d", len(listings), len(want))
	}
	for i := range want {
		if listings[i] != want[i] {
			t.Errorf("listing %d: %v != %v", i, listings[i], want[i])
		}
	}
}

func TestListRecursive(t *testing.T) {
	ofs, _ := testFS(t)
	if err := ofs.Write("d/a/f1", []byte("x"), ""); err != nil {
		t.Fatalf("Write - %v", err)
	}
	if err := ofs.CreateDirectories("d/empty"); err != nil {
		t.Fatalf("CreateDirectories - %v", err)
	}
	listings, err := ofs.ListRecursive("d")
	if err != nil {
		t.Fatalf("ListRecursive - %v", err)
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].Relative < listings[j].Relative })
	want := []storage.Listing{
		storage.FileListing("a/f1"),
		storage.DirectoryListing("empty"),
	}
	if len(listings) != len(want) {
		t.Fatalf("got %v, want %v", listings, want)
	}
	for i := range want {
		if listings[i] != want[i] {
			t.Errorf("listing %d: %v != %v", i, listings[i], want[i])
		}
	}
}

func TestMoveDirectory(t *testing.T) {
	ofs, _ := testFS(t)
	local := t.TempDir()
	if err := os.MkdirAll(filepath.Join(local, "v1", "content"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(local, "v1", "content", "f.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ofs.MoveDirectoryInto(filepath.Join(local, "v1"), "obj/v1"); err != nil {
		t.Fatalf("MoveDirectoryInto - %v", err)
	}
	content, err := ofs.ReadToString("obj/v1/content/f.txt")
	if err != nil || content != "hi" {
		t.Fatalf("ReadToString after move - '%s', %v", content, err)
	}
	if _, err := os.Stat(filepath.Join(local, "v1")); !os.IsNotExist(err) {
		t.Error("source should be gone after move")
	}
	if err := os.MkdirAll(filepath.Join(local, "v1"), 0755); err != nil {
		t.Fatal(err)
	}
	err = ofs.MoveDirectoryInto(filepath.Join(local, "v1"), "obj/v1")
	if !ocflerrors.Is(err, ocflerrors.ErrAlreadyExists) {
		t.Errorf("move onto existing should fail with ErrAlreadyExists, got %v", err)
	}
}

func TestMoveDirectoryInternal(t *testing.T) {
	ofs, _ := testFS(t)
	if err := ofs.Write("src/f", []byte("x"), ""); err != nil {
		t.Fatal(err)
	}
	if err := ofs.MoveDirectoryInternal("src", "dst"); err != nil {
		t.Fatalf("MoveDirectoryInternal - %v", err)
	}
	exists, err := ofs.FileExists("dst/f")
	if err != nil || !exists {
		t.Errorf("dst/f should exist - %v", err)
	}
}

func TestDeleteFilesBestEffort(t *testing.T) {
	ofs, _ := testFS(t)
	if err := ofs.Write("f1", []byte("x"), ""); err != nil {
		t.Fatal(err)
	}
	// deleting a missing file is not an error
	if err := ofs.DeleteFiles([]string{"f1", "missing"}); err != nil {
		t.Errorf("DeleteFiles - %v", err)
	}
	exists, _ := ofs.FileExists("f1")
	if exists {
		t.Error("f1 should be deleted")
	}
}

func TestDeleteEmptyDirsDown(t *testing.T) {
	ofs, _ := testFS(t)
	if err := ofs.Write("d/keep/f", []byte("x"), ""); err != nil {
		t.Fatal(err)
	}
	if err := ofs.CreateDirectories("d/e1/e2"); err != nil {
		t.Fatal(err)
	}
	if err := ofs.DeleteEmptyDirsDown("d"); err != nil {
		t.Fatalf("DeleteEmptyDirsDown - %v", err)
	}
	if exists, _ := ofs.DirectoryExists("d/e1"); exists {
		t.Error("d/e1 should be pruned")
	}
	if exists, _ := ofs.FileExists("d/keep/f"); !exists {
		t.Error("d/keep/f should survive")
	}
}

func TestDeleteEmptyDirsUp(t *testing.T) {
	ofs, _ := testFS(t)
	if err := ofs.CreateDirectories("a/b/c"); err != nil {
		t.Fatal(err)
	}
	if err := ofs.Write("a/f", []byte("x"), ""); err != nil {
		t.Fatal(err)
	}
	if err := ofs.DeleteEmptyDirsUp("a/b/c"); err != nil {
		t.Fatalf("DeleteEmptyDirsUp - %v", err)
	}
	if exists, _ := ofs.DirectoryExists("a/b"); exists {
		t.Error("a/b should be gone")
	}
	if exists, _ := ofs.DirectoryExists("a"); !exists {
		t.Error("a still holds a file and must survive")
	}
}

func TestIterateObjects(t *testing.T) {
	ofs, _ := testFS(t)
	for _, obj := range []string{"x/y/obj1", "x/obj2"} {
		if err := ofs.Write(obj+"/0=ocfl_object_1.1", []byte("ocfl_object_1.1\n"), ""); err != nil {
			t.Fatal(err)
		}
		if err := ofs.Write(obj+"/v1/content/f", []byte("x"), ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := ofs.Write("x/plain/file", []byte("x"), ""); err != nil {
		t.Fatal(err)
	}
	it, err := ofs.IterateObjects("")
	if err != nil {
		t.Fatalf("IterateObjects - %v", err)
	}
	defer it.Close()
	var roots []string
	for {
		root, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next - %v", err)
		}
		if !ok {
			break
		}
		roots = append(roots, root)
	}
	sort.Strings(roots)
	want := []string{"x/obj2", "x/y/obj1"}
	if len(roots) != len(want) {
		t.Fatalf("got %v, want %v", roots, want)
	}
	for i := range want {
		if roots[i] != want[i] {
			t.Errorf("root %d: %s != %s", i, roots[i], want[i])
		}
	}
}
