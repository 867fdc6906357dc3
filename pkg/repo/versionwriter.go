package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/ocfl-archive/ocflkit/pkg/checksum"
	"github.com/ocfl-archive/ocflkit/pkg/inventory"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

// writeNewVersion assembles the staged version and installs it: staging
// is trimmed to the content the successor manifest references, the
// inventory and its sidecar are serialized, the staged content is
// verified when verifyStaging is set, and the result is moved into the
// object root.
func (r *Repository) writeNewVersion(base, newInv *inventory.Inventory, updater *inventory.Updater, objectUpdater *ObjectUpdater, stagingDir string) error {
	expected := map[string]string{}
	for _, contentPath := range updater.StagedContentPaths() {
		expected[objectUpdater.stagingRelPath(contentPath)] = contentPath
	}
	if err := r.finalizeStaging(stagingDir, expected); err != nil {
		return errors.WithStack(err)
	}
	if err := r.writeInventoryFiles(stagingDir, newInv); err != nil {
		return errors.WithStack(err)
	}
	if r.verifyStaging {
		if err := r.verifyStagedContent(stagingDir, newInv, expected); err != nil {
			return errors.WithStack(err)
		}
	}

	rootPath, err := r.objectRootPath(newInv.Id)
	if err != nil {
		return errors.WithStack(err)
	}
	r.invCache.Invalidate(newInv.Id)
	mutable := updater.RevisionNum() > 0
	switch {
	case mutable:
		err = r.installMutableRevision(base, newInv, updater.RevisionNum(), rootPath, stagingDir)
	case newInv.HeadNum() == 1:
		err = r.installFirstVersion(newInv, rootPath, stagingDir)
	default:
		err = r.installNextVersion(base, newInv, rootPath, stagingDir)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	r.invCache.Put(newInv.Id, newInv)
	return nil
}

// finalizeStaging removes staged files the manifest no longer references
// (content that was overwritten or removed within the update) and prunes
// empty directories, so that a version without content has no content
// directory at all.
func (r *Repository) finalizeStaging(stagingDir string, expected map[string]string) error {
	err := filepath.WalkDir(stagingDir, func(entry string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(stagingDir, entry)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if _, ok := expected[rel]; ok {
			return nil
		}
		r.logger.Debug().Msgf("discarding staged file '%s'", rel)
		return os.Remove(entry)
	})
	if err != nil {
		return ocflerrors.StorageIO(err, "cannot finalize staging directory '%s'", stagingDir)
	}
	if err := pruneEmptyDirsLocal(stagingDir); err != nil {
		return ocflerrors.StorageIO(err, "cannot prune staging directory '%s'", stagingDir)
	}
	return nil
}

func pruneEmptyDirsLocal(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		if err := pruneEmptyDirsLocal(sub); err != nil {
			return err
		}
		subEntries, err := os.ReadDir(sub)
		if err != nil {
			return err
		}
		if len(subEntries) == 0 {
			if err := os.Remove(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeInventoryFiles serializes the inventory and its digest sidecar
// into the staging directory.
func (r *Repository) writeInventoryFiles(stagingDir string, inv *inventory.Inventory) error {
	var buf bytes.Buffer
	if err := r.mapper.Write(&buf, inv); err != nil {
		return errors.WithStack(err)
	}
	digest, err := checksum.Checksum(bytes.NewReader(buf.Bytes()), inv.DigestAlgorithm)
	if err != nil {
		return errors.WithStack(err)
	}
	invPath := filepath.Join(stagingDir, "inventory.json")
	if err := os.WriteFile(invPath, buf.Bytes(), 0644); err != nil {
		return ocflerrors.StorageIO(err, "cannot write staged inventory '%s'", invPath)
	}
	sidecarPath := filepath.Join(stagingDir, inventory.SidecarName(inv.DigestAlgorithm))
	if err := os.WriteFile(sidecarPath, []byte(inventory.RenderSidecar(digest)), 0644); err != nil {
		return ocflerrors.StorageIO(err, "cannot write staged sidecar '%s'", sidecarPath)
	}
	return nil
}

// verifyStagedContent recomputes the digest of every staged content file
// and compares it with the successor manifest.
func (r *Repository) verifyStagedContent(stagingDir string, inv *inventory.Inventory, expected map[string]string) error {
	byContentPath := map[string]string{}
	for digest, paths := range inv.Manifest {
		for _, contentPath := range paths {
			byContentPath[contentPath] = digest
		}
	}
	for rel, contentPath := range expected {
		digest, ok := byContentPath[contentPath]
		if !ok {
			return ocflerrors.CorruptObject("staged file '%s' has no manifest entry", contentPath)
		}
		fp, err := os.Open(filepath.Join(stagingDir, filepath.FromSlash(rel)))
		if err != nil {
			return ocflerrors.StorageIO(err, "cannot open staged file '%s'", rel)
		}
		actual, err := checksum.Checksum(fp, inv.DigestAlgorithm)
		fp.Close()
		if err != nil {
			return errors.WithStack(err)
		}
		if !checksum.Equal(actual, digest) {
			return ocflerrors.FixityMismatch("staged file '%s' has digest %s, manifest says %s", contentPath, actual, digest)
		}
	}
	return nil
}

// installFirstVersion creates the object root and installs v1. A
// concurrent creation of the same object surfaces as ObjectOutOfSync.
func (r *Repository) installFirstVersion(newInv *inventory.Inventory, rootPath, stagingDir string) error {
	if err := r.store.Write(rootPath+"/"+ObjectNamasteFile, []byte(ObjectNamasteContent), "text/plain"); err != nil {
		if ocflerrors.Is(err, ocflerrors.ErrAlreadyExists) {
			return ocflerrors.OutOfSync("object '%s' was created concurrently", newInv.Id)
		}
		return errors.WithStack(err)
	}
	versionDir := rootPath + "/" + newInv.Head
	if err := r.store.MoveDirectoryInto(stagingDir, versionDir); err != nil {
		if ocflerrors.Is(err, ocflerrors.ErrAlreadyExists) {
			return ocflerrors.OutOfSync("version %s of object '%s' was installed concurrently", newInv.Head, newInv.Id)
		}
		// the object was just created, roll the whole root back
		if derr := r.store.DeleteDirectory(rootPath); derr != nil {
			r.logger.Error().Err(derr).Msgf("rollback of object '%s' failed, manual repair required", newInv.Id)
			return ocflerrors.CorruptObject("cannot install %s of '%s' and rollback failed: %v", newInv.Head, newInv.Id, err)
		}
		return errors.WithStack(err)
	}
	if err := r.installRootInventory(newInv, rootPath, versionDir); err != nil {
		// the object was just created, roll the whole root back
		if derr := r.store.DeleteDirectory(rootPath); derr != nil {
			r.logger.Error().Err(derr).Msgf("rollback of object '%s' failed, manual repair required", newInv.Id)
			return ocflerrors.CorruptObject("cannot install root inventory of '%s' and rollback failed: %v", newInv.Id, err)
		}
		return errors.WithStack(err)
	}
	return nil
}

// installNextVersion installs v{N+1} under the object lock after
// verifying that the on-storage head still equals the expected
// predecessor.
func (r *Repository) installNextVersion(base, newInv *inventory.Inventory, rootPath, stagingDir string) error {
	onStorage, err := r.readInventory(rootPath + "/inventory.json")
	if err != nil {
		return errors.WithStack(err)
	}
	if onStorage.Head != base.Head {
		return ocflerrors.OutOfSync("object '%s' is at %s, expected %s", newInv.Id, onStorage.Head, base.Head)
	}
	versionDir := rootPath + "/" + newInv.Head
	if err := r.store.MoveDirectoryInto(stagingDir, versionDir); err != nil {
		if ocflerrors.Is(err, ocflerrors.ErrAlreadyExists) {
			return ocflerrors.OutOfSync("version %s of object '%s' was installed concurrently", newInv.Head, newInv.Id)
		}
		return errors.WithStack(err)
	}
	if err := r.installRootInventory(newInv, rootPath, versionDir); err != nil {
		// best-effort rollback: drop the newly installed version
		if derr := r.store.DeleteDirectory(versionDir); derr != nil {
			r.logger.Error().Err(derr).Msgf("rollback of version %s of object '%s' failed, manual repair required", newInv.Head, newInv.Id)
			return ocflerrors.CorruptObject("cannot install root inventory of '%s' and rollback failed: %v", newInv.Id, err)
		}
		return errors.WithStack(err)
	}
	return nil
}

// installRootInventory replaces the root inventory and sidecar with the
// copies of the freshly installed version directory.
func (r *Repository) installRootInventory(inv *inventory.Inventory, rootPath, versionDir string) error {
	sidecar := inventory.SidecarName(inv.DigestAlgorithm)
	if err := r.store.CopyFileInternal(versionDir+"/inventory.json", rootPath+"/inventory.json"); err != nil {
		return errors.WithStack(err)
	}
	if err := r.store.CopyFileInternal(versionDir+"/"+sidecar, rootPath+"/"+sidecar); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// installMutableRevision installs one revision of the mutable HEAD
// overlay: the staged revision content moves below the overlay's content
// directory and the overlay inventory is replaced.
func (r *Repository) installMutableRevision(base, newInv *inventory.Inventory, revision int, rootPath, stagingDir string) error {
	headDir := rootPath + "/" + inventory.MutableHeadDir
	if revision == 1 {
		exists, err := r.store.DirectoryExists(headDir)
		if err != nil {
			return errors.WithStack(err)
		}
		if exists {
			return ocflerrors.OutOfSync("object '%s' already has a mutable HEAD", newInv.Id)
		}
		onStorage, err := r.readInventory(rootPath + "/inventory.json")
		if err != nil {
			return errors.WithStack(err)
		}
		if onStorage.Head != base.Head {
			return ocflerrors.OutOfSync("object '%s' is at %s, expected %s", newInv.Id, onStorage.Head, base.Head)
		}
	} else {
		onStorage, err := r.readInventory(headDir + "/inventory.json")
		if err != nil {
			return errors.WithStack(err)
		}
		if onStorage.Head != newInv.Head {
			return ocflerrors.OutOfSync("mutable HEAD of object '%s' is at %s, expected %s", newInv.Id, onStorage.Head, newInv.Head)
		}
		maxRev, err := r.maxRevisionMarker(rootPath)
		if err != nil {
			return errors.WithStack(err)
		}
		if maxRev != revision-1 {
			return ocflerrors.OutOfSync("mutable HEAD of object '%s' is at r%d, expected r%d", newInv.Id, maxRev, revision-1)
		}
	}

	revisionName := fmt.Sprintf("r%d", revision)
	// claiming the revision marker first makes concurrent stagers of the
	// same revision fail before any content moves
	marker := rootPath + "/" + inventory.MutableHeadRevisionsDir + "/" + revisionName
	if err := r.store.Write(marker, []byte(revisionName+"\n"), "text/plain"); err != nil {
		if ocflerrors.Is(err, ocflerrors.ErrAlreadyExists) {
			return ocflerrors.OutOfSync("revision %s of object '%s' was claimed concurrently", revisionName, newInv.Id)
		}
		return errors.WithStack(err)
	}
	stagedRevision := filepath.Join(stagingDir, newInv.ContentDir(), revisionName)
	if fi, err := os.Stat(stagedRevision); err == nil && fi.IsDir() {
		target := headDir + "/" + newInv.ContentDir() + "/" + revisionName
		if err := r.store.MoveDirectoryInto(stagedRevision, target); err != nil {
			if ocflerrors.Is(err, ocflerrors.ErrAlreadyExists) {
				return ocflerrors.OutOfSync("revision %s of object '%s' was installed concurrently", revisionName, newInv.Id)
			}
			return errors.WithStack(err)
		}
	} else if err := r.store.CreateDirectories(headDir); err != nil {
		return errors.WithStack(err)
	}

	sidecar := inventory.SidecarName(newInv.DigestAlgorithm)
	if err := r.store.CopyFileInto(filepath.Join(stagingDir, "inventory.json"), headDir+"/inventory.json", "application/json"); err != nil {
		return errors.WithStack(err)
	}
	if err := r.store.CopyFileInto(filepath.Join(stagingDir, sidecar), headDir+"/"+sidecar, "text/plain"); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// mutableHeadExtensionRoot is the extension directory that holds the
// mutable HEAD overlay.
func mutableHeadExtensionRoot(rootPath string) string {
	return rootPath + "/" + strings.TrimSuffix(inventory.MutableHeadDir, "/head")
}
