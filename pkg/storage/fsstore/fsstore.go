package fsstore

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emperror.dev/errors"
	"github.com/google/uuid"
	"github.com/je4/utils/v2/pkg/zLogger"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
	"github.com/ocfl-archive/ocflkit/pkg/storage"
)

// FS is the local filesystem storage backend. All paths are forward-slash
// separated and relative to the root folder. The media type parameters of
// the Storage contract are advisory and ignored here.
type FS struct {
	folder string
	logger zLogger.ZLogger
}

func NewFS(folder string, logger zLogger.ZLogger) (*FS, error) {
	folder = filepath.ToSlash(filepath.Clean(folder))
	fi, err := os.Stat(folder)
	if err != nil {
		return nil, ocflerrors.StorageIO(err, "cannot stat root folder %s", folder)
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("root %s is not a directory", folder)
	}
	return &FS{folder: folder, logger: logger}, nil
}

func (ofs *FS) String() string {
	return "file://" + ofs.folder
}

func (ofs *FS) fullpath(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "./")
	if name == "." || name == "" {
		return ofs.folder
	}
	return filepath.Join(ofs.folder, filepath.FromSlash(name))
}

func (ofs *FS) ListDirectory(path string) ([]storage.Listing, error) {
	fullpath := ofs.fullpath(path)
	ofs.logger.Debug().Msgf("listing %s", fullpath)
	dentries, err := os.ReadDir(fullpath)
	if os.IsNotExist(err) {
		return nil, ocflerrors.NotFound("directory %s", path)
	}
	if err != nil {
		return nil, ocflerrors.StorageIO(err, "cannot read folder %s", fullpath)
	}
	result := make([]storage.Listing, 0, len(dentries))
	for _, dentry := range dentries {
		switch {
		case dentry.Type().IsRegular():
			result = append(result, storage.FileListing(dentry.Name()))
		case dentry.IsDir():
			result = append(result, storage.DirectoryListing(dentry.Name()))
		default:
			result = append(result, storage.OtherListing(dentry.Name()))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Relative < result[j].Relative })
	return result, nil
}

func (ofs *FS) ListRecursive(path string) ([]storage.Listing, error) {
	fullpath := ofs.fullpath(path)
	var result []storage.Listing
	err := filepath.WalkDir(fullpath, func(entry string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(fullpath, entry)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		switch {
		case d.Type().IsRegular():
			result = append(result, storage.FileListing(rel))
		case d.IsDir():
			empty, eerr := isDirEmpty(entry)
			if eerr != nil {
				return eerr
			}
			if empty {
				result = append(result, storage.DirectoryListing(rel))
			}
		default:
			result = append(result, storage.OtherListing(rel))
		}
		return nil
	})
	if os.IsNotExist(errors.Cause(err)) {
		return nil, ocflerrors.NotFound("directory %s", path)
	}
	if err != nil {
		return nil, ocflerrors.StorageIO(err, "cannot walk %s", fullpath)
	}
	return result, nil
}

func (ofs *FS) FileExists(path string) (bool, error) {
	fi, err := os.Stat(ofs.fullpath(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, ocflerrors.StorageIO(err, "cannot stat %s", path)
	}
	return fi.Mode().IsRegular(), nil
}

func (ofs *FS) DirectoryExists(path string) (bool, error) {
	fi, err := os.Stat(ofs.fullpath(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, ocflerrors.StorageIO(err, "cannot stat %s", path)
	}
	return fi.IsDir(), nil
}

func (ofs *FS) Read(path string) (io.ReadCloser, error) {
	fullpath := ofs.fullpath(path)
	ofs.logger.Debug().Msgf("opening %s", fullpath)
	fp, err := os.Open(fullpath)
	if os.IsNotExist(err) {
		return nil, ocflerrors.NotFound("file %s", path)
	}
	if err != nil {
		return nil, ocflerrors.StorageIO(err, "cannot open %s", fullpath)
	}
	return fp, nil
}

func (ofs *FS) ReadToString(path string) (string, error) {
	fp, err := ofs.Read(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer fp.Close()
	data, err := io.ReadAll(fp)
	if err != nil {
		return "", ocflerrors.StorageIO(err, "cannot read %s", path)
	}
	return string(data), nil
}

func (ofs *FS) Write(path string, content []byte, _ string) error {
	fullpath := ofs.fullpath(path)
	ofs.logger.Debug().Msgf("writing %s", fullpath)
	if _, err := os.Stat(fullpath); err == nil {
		return ocflerrors.AlreadyExists("file %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(fullpath), 0755); err != nil {
		return ocflerrors.StorageIO(err, "cannot create parent of %s", fullpath)
	}
	// write to a sibling temp file and rename so that readers never see
	// partial contents
	tmp := fullpath + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return ocflerrors.StorageIO(err, "cannot write %s", tmp)
	}
	if err := os.Rename(tmp, fullpath); err != nil {
		os.Remove(tmp)
		return ocflerrors.StorageIO(err, "cannot rename %s to %s", tmp, fullpath)
	}
	return nil
}

func (ofs *FS) CreateDirectories(path string) error {
	if err := os.MkdirAll(ofs.fullpath(path), 0755); err != nil {
		return ocflerrors.StorageIO(err, "cannot create directories %s", path)
	}
	return nil
}

func (ofs *FS) CopyDirectoryOutOf(src string, dstLocal string) error {
	fullpath := ofs.fullpath(src)
	return copyTree(fullpath, dstLocal)
}

func (ofs *FS) CopyFileInto(srcLocal string, dst string, _ string) error {
	return copyFileReplacing(srcLocal, ofs.fullpath(dst))
}

func (ofs *FS) CopyFileInternal(src, dst string) error {
	return copyFileReplacing(ofs.fullpath(src), ofs.fullpath(dst))
}

func (ofs *FS) MoveDirectoryInto(srcLocal string, dst string) error {
	return moveDirectory(srcLocal, ofs.fullpath(dst))
}

func (ofs *FS) MoveDirectoryInternal(src, dst string) error {
	return moveDirectory(ofs.fullpath(src), ofs.fullpath(dst))
}

func (ofs *FS) DeleteFile(path string) error {
	fullpath := ofs.fullpath(path)
	ofs.logger.Debug().Msgf("deleting %s", fullpath)
	if err := os.Remove(fullpath); err != nil && !os.IsNotExist(err) {
		return ocflerrors.StorageIO(err, "cannot delete %s", fullpath)
	}
	return nil
}

func (ofs *FS) DeleteFiles(paths []string) error {
	var failed []error
	for _, path := range paths {
		if err := ofs.DeleteFile(path); err != nil {
			ofs.logger.Warn().Err(err).Msgf("cannot delete %s", path)
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return ocflerrors.StorageIO(errors.Combine(failed...), "cannot delete %d of %d files", len(failed), len(paths))
	}
	return nil
}

func (ofs *FS) DeleteDirectory(path string) error {
	fullpath := ofs.fullpath(path)
	ofs.logger.Debug().Msgf("deleting directory %s", fullpath)
	if err := os.RemoveAll(fullpath); err != nil {
		return ocflerrors.StorageIO(err, "cannot delete directory %s", fullpath)
	}
	return nil
}

func (ofs *FS) DeleteEmptyDirsDown(path string) error {
	fullpath := ofs.fullpath(path)
	if _, err := os.Stat(fullpath); os.IsNotExist(err) {
		return nil
	}
	_, err := pruneEmptyDirs(fullpath, false)
	if err != nil {
		return ocflerrors.StorageIO(err, "cannot prune empty directories below %s", fullpath)
	}
	return nil
}

func (ofs *FS) DeleteEmptyDirsUp(path string) error {
	fullpath := ofs.fullpath(path)
	if err := os.Remove(fullpath); err != nil && !os.IsNotExist(err) {
		return ocflerrors.StorageIO(err, "cannot delete %s", fullpath)
	}
	parent := filepath.Dir(fullpath)
	for parent != ofs.folder && strings.HasPrefix(parent, ofs.folder) {
		empty, err := isDirEmpty(parent)
		if err != nil || !empty {
			break
		}
		if err := os.Remove(parent); err != nil {
			break
		}
		parent = filepath.Dir(parent)
	}
	return nil
}

func isDirEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// pruneEmptyDirs removes empty directories below path bottom-up. When
// removeSelf is set, path itself is removed if it ends up empty. Returns
// whether path was removed.
func pruneEmptyDirs(path string, removeSelf bool) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := pruneEmptyDirs(filepath.Join(path, entry.Name()), true); err != nil {
			return false, err
		}
	}
	if !removeSelf {
		return false, nil
	}
	empty, err := isDirEmpty(path)
	if err != nil {
		return false, err
	}
	if !empty {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}

func copyFileReplacing(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return ocflerrors.StorageIO(err, "cannot open %s", src)
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return ocflerrors.StorageIO(err, "cannot create parent of %s", dst)
	}
	tmp := dst + ".tmp-" + uuid.NewString()
	out, err := os.Create(tmp)
	if err != nil {
		return ocflerrors.StorageIO(err, "cannot create %s", tmp)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return ocflerrors.StorageIO(err, "cannot copy %s to %s", src, tmp)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return ocflerrors.StorageIO(err, "cannot close %s", tmp)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return ocflerrors.StorageIO(err, "cannot rename %s to %s", tmp, dst)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(entry string, d os.DirEntry, err error) error {
		if err != nil {
			return ocflerrors.StorageIO(err, "cannot walk %s", src)
		}
		rel, err := filepath.Rel(src, entry)
		if err != nil {
			return errors.WithStack(err)
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return ocflerrors.StorageIO(err, "cannot create %s", target)
			}
			return nil
		}
		return copyFileReplacing(entry, target)
	})
}

func moveDirectory(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return ocflerrors.AlreadyExists("directory %s", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return ocflerrors.StorageIO(err, "cannot create parent of %s", dst)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return ocflerrors.StorageIO(err, "cannot move %s to %s", src, dst)
	}
	// rename across devices fails, fall back to copy and delete
	if err := copyTree(src, dst); err != nil {
		return errors.WithStack(err)
	}
	if err := os.RemoveAll(src); err != nil {
		return ocflerrors.StorageIO(err, "cannot remove %s after copy", src)
	}
	return nil
}

var (
	_ storage.Storage = &FS{}
)
