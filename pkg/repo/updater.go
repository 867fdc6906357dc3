package repo

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emperror.dev/errors"
	"github.com/google/uuid"
	"github.com/ocfl-archive/ocflkit/pkg/checksum"
	"github.com/ocfl-archive/ocflkit/pkg/inventory"
	"github.com/ocfl-archive/ocflkit/pkg/lock"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
	"github.com/ocfl-archive/ocflkit/pkg/pathmap"
)

// ObjectUpdater is the mutation surface handed to update closures. All
// methods may be called from multiple goroutines; writes to the same
// logical path are serialized by the file lock.
type ObjectUpdater struct {
	r          *Repository
	updater    *inventory.Updater
	stagingDir string
	fileLocker *lock.FileLocker
}

func newObjectUpdater(r *Repository, updater *inventory.Updater, stagingDir string) *ObjectUpdater {
	return &ObjectUpdater{
		r:          r,
		updater:    updater,
		stagingDir: stagingDir,
		fileLocker: lock.NewFileLocker(r.fileLockTimeout),
	}
}

// stagingRelPath converts a manifest content path into the path of the
// staged file below the staging directory.
func (u *ObjectUpdater) stagingRelPath(contentPath string) string {
	if u.updater.RevisionNum() > 0 {
		return strings.TrimPrefix(contentPath, inventory.MutableHeadDir+"/")
	}
	return strings.TrimPrefix(contentPath, u.updater.Head()+"/")
}

// WriteFile streams reader into the staging area under the logical path,
// computing the primary digest on the way. Content whose digest is
// already known is deduplicated: the staged bytes are discarded and the
// existing content path is bound. Additional fixity algorithms are
// recorded in the inventory's fixity block.
func (u *ObjectUpdater) WriteFile(reader io.Reader, logicalPath string, overwrite bool, fixityAlgs ...checksum.DigestAlgorithm) error {
	if err := pathmap.ValidateLogicalPath(logicalPath); err != nil {
		return err
	}
	part, err := u.r.pathMapper.ToContentPathPart(logicalPath)
	if err != nil {
		return errors.Wrapf(err, "cannot map logical path '%s'", logicalPath)
	}
	contentPath := u.updater.ContentPrefix() + "/" + part
	if err := u.r.constraints.Apply(contentPath); err != nil {
		return errors.WithStack(err)
	}

	return u.fileLocker.WithLock(logicalPath, func() error {
		provisional := filepath.Join(u.stagingDir, ".staging-"+uuid.NewString())
		fp, err := os.Create(provisional)
		if err != nil {
			return ocflerrors.StorageIO(err, "cannot create staging file '%s'", provisional)
		}
		algs := append([]checksum.DigestAlgorithm{u.updater.DigestAlgorithm()}, fixityAlgs...)
		css, err := checksum.Copy(fp, reader, algs)
		if cerr := fp.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(provisional)
			return ocflerrors.StorageIO(err, "cannot stage content for '%s'", logicalPath)
		}
		digest := css[u.updater.DigestAlgorithm()]

		isNew, err := u.updater.AddFile(digest, logicalPath, contentPath, overwrite)
		if err != nil {
			os.Remove(provisional)
			return errors.WithStack(err)
		}
		if !isNew {
			// identical bytes already exist, keep the established content path
			os.Remove(provisional)
			contentPath = u.updater.ContentPathOf(digest)
		} else {
			target := filepath.Join(u.stagingDir, filepath.FromSlash(u.stagingRelPath(contentPath)))
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				os.Remove(provisional)
				return ocflerrors.StorageIO(err, "cannot create staging directory for '%s'", contentPath)
			}
			if err := os.Rename(provisional, target); err != nil {
				os.Remove(provisional)
				return ocflerrors.StorageIO(err, "cannot promote staged file to '%s'", target)
			}
		}
		for _, alg := range fixityAlgs {
			if err := u.updater.AddFixity(alg, css[alg], contentPath); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}

// AddPath ingests a local file.
func (u *ObjectUpdater) AddPath(localPath, logicalPath string, overwrite bool, fixityAlgs ...checksum.DigestAlgorithm) error {
	fp, err := os.Open(localPath)
	if err != nil {
		return ocflerrors.StorageIO(err, "cannot open '%s'", localPath)
	}
	defer fp.Close()
	return u.WriteFile(fp, logicalPath, overwrite, fixityAlgs...)
}

func (u *ObjectUpdater) RemoveFile(logicalPath string) error {
	return u.fileLocker.WithLock(logicalPath, func() error {
		return u.updater.RemoveFile(logicalPath)
	})
}

func (u *ObjectUpdater) RenameFile(src, dst string, overwrite bool) error {
	if err := pathmap.ValidateLogicalPath(dst); err != nil {
		return err
	}
	return u.updater.RenameFile(src, dst, overwrite)
}

func (u *ObjectUpdater) ReinstateFile(srcVersion, srcLogical, dst string, overwrite bool) error {
	if err := pathmap.ValidateLogicalPath(dst); err != nil {
		return err
	}
	return u.updater.ReinstateFile(srcVersion, srcLogical, dst, overwrite)
}

// RemoveAll clears the successor state. Used to replace an object's state
// wholesale.
func (u *ObjectUpdater) RemoveAll() error {
	for _, logicalPath := range u.updater.LogicalPaths() {
		if err := u.updater.RemoveFile(logicalPath); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// UpdateObject creates a new immutable version of an object by applying
// the closure's mutations to a copy of the current head state. The first
// successful update of an id creates the object. Returns the new head
// version name.
func (r *Repository) UpdateObject(id string, info inventory.VersionInfo, fn func(*ObjectUpdater) error) (string, error) {
	if err := r.ensureOpen(); err != nil {
		return "", err
	}
	if fn == nil {
		return "", errors.New("no update closure")
	}
	if _, err := r.objectRootPath(id); err != nil {
		return "", errors.WithStack(err)
	}
	if info.Created.IsZero() {
		info.Created = r.now()
	}
	var newHead string
	err := r.objectLock.DoInWriteLock(id, func() error {
		base, err := r.loadInventory(id)
		if err != nil {
			return errors.WithStack(err)
		}
		if base == nil {
			if base, err = inventory.NewInventory(id, r.digestAlg, r.contentDir); err != nil {
				return errors.WithStack(err)
			}
		}
		updater, err := inventory.NewUpdater(base, inventory.CopyState, info)
		if err != nil {
			return errors.WithStack(err)
		}
		stagingDir, err := createObjectTempDir(r.workDir, id)
		if err != nil {
			return errors.WithStack(err)
		}
		defer safeDeleteDirectory(stagingDir, r.logger)

		objectUpdater := newObjectUpdater(r, updater, stagingDir)
		if err := fn(objectUpdater); err != nil {
			return errors.Wrapf(err, "update of object '%s' failed", id)
		}
		newInv, err := updater.Build()
		if err != nil {
			return errors.WithStack(err)
		}
		if err := r.writeNewVersion(base, newInv, updater, objectUpdater, stagingDir); err != nil {
			return errors.WithStack(err)
		}
		newHead = newInv.Head
		return nil
	})
	if err != nil {
		return "", err
	}
	return newHead, nil
}

// PutObject replaces the whole object state with the given files, keyed
// by logical path.
func (r *Repository) PutObject(id string, info inventory.VersionInfo, files map[string]io.Reader) (string, error) {
	logicalPaths := make([]string, 0, len(files))
	for logicalPath := range files {
		logicalPaths = append(logicalPaths, logicalPath)
	}
	sort.Strings(logicalPaths)
	return r.UpdateObject(id, info, func(u *ObjectUpdater) error {
		if err := u.RemoveAll(); err != nil {
			return err
		}
		for _, logicalPath := range logicalPaths {
			if err := u.WriteFile(files[logicalPath], logicalPath, false); err != nil {
				return err
			}
		}
		return nil
	})
}
