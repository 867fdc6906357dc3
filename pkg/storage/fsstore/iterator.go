package fsstore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
	"github.com/ocfl-archive/ocflkit/pkg/storage"
)

// objectRootIterator walks the tree depth-first and yields every directory
// containing a "0=ocfl_object_*" namaste file. Object roots are not
// descended into.
type objectRootIterator struct {
	ofs   *FS
	stack []string
}

func (ofs *FS) IterateObjects(path string) (storage.ObjectRootIterator, error) {
	fullpath := ofs.fullpath(path)
	if _, err := os.Stat(fullpath); os.IsNotExist(err) {
		return nil, ocflerrors.NotFound("directory %s", path)
	}
	rel := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "./")
	if rel == "." {
		rel = ""
	}
	return &objectRootIterator{ofs: ofs, stack: []string{rel}}, nil
}

func (it *objectRootIterator) Next() (string, bool, error) {
	for len(it.stack) > 0 {
		dir := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]

		entries, err := os.ReadDir(it.ofs.fullpath(dir))
		if err != nil {
			return "", false, ocflerrors.StorageIO(err, "cannot read %s", dir)
		}
		isRoot := false
		var subdirs []string
		for _, entry := range entries {
			if entry.Type().IsRegular() && strings.HasPrefix(entry.Name(), "0=ocfl_object_") {
				isRoot = true
				break
			}
			if entry.IsDir() {
				subdirs = append(subdirs, pathJoin(dir, entry.Name()))
			}
		}
		if isRoot {
			return dir, true, nil
		}
		it.stack = append(it.stack, subdirs...)
	}
	return "", false, nil
}

func (it *objectRootIterator) Close() error {
	it.stack = nil
	return nil
}

func pathJoin(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
