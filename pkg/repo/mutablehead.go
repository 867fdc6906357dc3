package repo

import (
	"emperror.dev/errors"
	"github.com/ocfl-archive/ocflkit/pkg/inventory"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

// StageChanges applies an update closure to the mutable HEAD overlay,
// allocating a new revision. An object that does not exist yet is first
// created with an auto-generated empty v1.
func (r *Repository) StageChanges(id string, info inventory.VersionInfo, fn func(*ObjectUpdater) error) (string, error) {
	if err := r.ensureOpen(); err != nil {
		return "", err
	}
	if fn == nil {
		return "", errors.New("no update closure")
	}
	if _, err := r.objectRootPath(id); err != nil {
		return "", errors.WithStack(err)
	}
	var newHead string
	err := r.objectLock.DoInWriteLock(id, func() error {
		base, err := r.loadInventory(id)
		if err != nil {
			return errors.WithStack(err)
		}
		if base == nil {
			// if mutable HEAD creation fails later, the object with the
			// empty version remains
			if base, err = r.createEmptyVersion(id); err != nil {
				return errors.WithStack(err)
			}
		}
		// stamped after the empty v1 so the staged version does not predate it
		if info.Created.IsZero() {
			info.Created = r.now()
		}
		updater, err := inventory.NewUpdater(base, inventory.CopyStateMutable, info)
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
			return errors.Wrapf(err, "staging changes to object '%s' failed", id)
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

// createEmptyVersion creates the object with an auto-generated empty v1.
// This is the only way the engine produces a version with no user
// content.
func (r *Repository) createEmptyVersion(id string) (*inventory.Inventory, error) {
	r.logger.Info().Msgf("creating object '%s' with an empty version", id)
	stub, err := inventory.NewInventory(id, r.digestAlg, r.contentDir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	updater, err := inventory.NewUpdater(stub, inventory.CopyState, inventory.VersionInfo{
		Created: r.now(),
		Message: "Auto-generated empty object version.",
		User:    &inventory.User{Name: "ocflkit", Address: "https://github.com/ocfl-archive/ocflkit"},
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	stagingDir, err := createObjectTempDir(r.workDir, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer safeDeleteDirectory(stagingDir, r.logger)

	objectUpdater := newObjectUpdater(r, updater, stagingDir)
	newInv, err := updater.Build()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := r.writeNewVersion(stub, newInv, updater, objectUpdater, stagingDir); err != nil {
		return nil, errors.WithStack(err)
	}
	return newInv, nil
}

// CommitStagedChanges folds the mutable HEAD into the next immutable
// version and removes the overlay. Committing an object without staged
// changes returns the current head unchanged.
func (r *Repository) CommitStagedChanges(id string, info inventory.VersionInfo) (string, error) {
	if err := r.ensureOpen(); err != nil {
		return "", err
	}
	if info.Created.IsZero() {
		info.Created = r.now()
	}
	var head string
	err := r.objectLock.DoInWriteLock(id, func() error {
		mutable, err := r.requireInventory(id)
		if err != nil {
			return errors.WithStack(err)
		}
		head = mutable.Head
		if !mutable.HasMutableHead() {
			return nil
		}
		newInv, err := inventory.CommitMutableHead(mutable, info)
		if err != nil {
			return errors.WithStack(err)
		}
		stagingDir, err := createObjectTempDir(r.workDir, id)
		if err != nil {
			return errors.WithStack(err)
		}
		defer safeDeleteDirectory(stagingDir, r.logger)

		if err := r.writeInventoryFiles(stagingDir, newInv); err != nil {
			return errors.WithStack(err)
		}
		if err := r.installCommittedHead(newInv, stagingDir); err != nil {
			return errors.WithStack(err)
		}
		head = newInv.Head
		return nil
	})
	if err != nil {
		return "", err
	}
	return head, nil
}

// installCommittedHead moves the overlay into the version directory,
// replaces its inventory with the folded one and promotes it to the
// object root.
func (r *Repository) installCommittedHead(newInv *inventory.Inventory, stagingDir string) error {
	rootPath, err := r.objectRootPath(newInv.Id)
	if err != nil {
		return errors.WithStack(err)
	}
	r.invCache.Invalidate(newInv.Id)
	headDir := rootPath + "/" + inventory.MutableHeadDir
	versionDir := rootPath + "/" + newInv.Head

	if err := r.store.MoveDirectoryInternal(headDir, versionDir); err != nil {
		if ocflerrors.Is(err, ocflerrors.ErrAlreadyExists) {
			return ocflerrors.OutOfSync("version %s of object '%s' was installed concurrently", newInv.Head, newInv.Id)
		}
		return errors.WithStack(err)
	}
	sidecar := inventory.SidecarName(newInv.DigestAlgorithm)
	if err := r.store.CopyFileInto(stagingDir+"/inventory.json", versionDir+"/inventory.json", "application/json"); err != nil {
		return r.rollbackCommittedHead(newInv, versionDir, err)
	}
	if err := r.store.CopyFileInto(stagingDir+"/"+sidecar, versionDir+"/"+sidecar, "text/plain"); err != nil {
		return r.rollbackCommittedHead(newInv, versionDir, err)
	}
	if err := r.installRootInventory(newInv, rootPath, versionDir); err != nil {
		return r.rollbackCommittedHead(newInv, versionDir, err)
	}
	extensionRoot := mutableHeadExtensionRoot(rootPath)
	if err := r.store.DeleteDirectory(extensionRoot); err != nil {
		r.logger.Warn().Err(err).Msgf("cannot remove mutable HEAD extension dir of '%s'", newInv.Id)
	}
	if err := r.store.DeleteEmptyDirsUp(extensionRoot); err != nil {
		r.logger.Warn().Err(err).Msgf("cannot prune extension dirs of '%s'", newInv.Id)
	}
	r.invCache.Put(newInv.Id, newInv)
	return nil
}

func (r *Repository) rollbackCommittedHead(newInv *inventory.Inventory, versionDir string, cause error) error {
	if derr := r.store.DeleteDirectory(versionDir); derr != nil {
		r.logger.Error().Err(derr).Msgf("rollback of version %s of object '%s' failed, manual repair required", newInv.Head, newInv.Id)
		return ocflerrors.CorruptObject("cannot commit mutable HEAD of '%s' and rollback failed: %v", newInv.Id, cause)
	}
	return errors.WithStack(cause)
}

// PurgeStagedChanges deletes the mutable HEAD overlay; committed versions
// are untouched. Purging an object without staged changes is not an
// error.
func (r *Repository) PurgeStagedChanges(id string) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	rootPath, err := r.objectRootPath(id)
	if err != nil {
		return errors.WithStack(err)
	}
	return r.objectLock.DoInWriteLock(id, func() error {
		r.logger.Info().Msgf("purging staged changes of object '%s'", id)
		r.invCache.Invalidate(id)
		extensionRoot := mutableHeadExtensionRoot(rootPath)
		if err := r.store.DeleteDirectory(extensionRoot); err != nil {
			return errors.WithStack(err)
		}
		return errors.WithStack(r.store.DeleteEmptyDirsUp(extensionRoot))
	})
}

// HasStagedChanges reports whether a mutable HEAD overlay exists for the
// object.
func (r *Repository) HasStagedChanges(id string) (bool, error) {
	if err := r.ensureOpen(); err != nil {
		return false, err
	}
	inv, err := r.loadInventory(id)
	if err != nil {
		return false, errors.WithStack(err)
	}
	if inv == nil {
		return false, nil
	}
	return inv.HasMutableHead(), nil
}
