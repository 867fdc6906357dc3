package inventory

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/ocfl-archive/ocflkit/pkg/checksum"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

// VersionInfo carries the caller-supplied metadata of a new version.
type VersionInfo struct {
	Created time.Time
	Message string
	User    *User
}

type UpdaterMode int

const (
	// CopyState initializes the successor state as a copy of the current
	// head state.
	CopyState UpdaterMode = iota
	// CopyStateMutable does the same but targets the mutable HEAD,
	// reserving the next revision number.
	CopyStateMutable
)

// Updater applies logical mutations to a copy-on-write successor
// inventory. Build produces the next inventory; the base is never
// modified.
type Updater struct {
	inv     *Inventory
	mutable bool
}

// NewUpdater opens a successor for base. In CopyState mode the head
// increments by exactly one; in CopyStateMutable mode a new mutable HEAD
// revision is reserved (incrementing the head only when no mutable HEAD
// exists yet).
func NewUpdater(base *Inventory, mode UpdaterMode, info VersionInfo) (*Updater, error) {
	if base == nil {
		return nil, errors.New("no base inventory")
	}
	if mode == CopyState && base.HasMutableHead() {
		return nil, ocflerrors.OutOfSync("object '%s' has staged changes that must be committed or purged first", base.Id)
	}
	inv := base.Copy()
	padding := base.Padding()

	var prevState map[string][]string
	newVersion := &Version{
		Created: OCFLTime{info.Created},
		Message: info.Message,
		User:    info.User,
		State:   map[string][]string{},
	}

	switch {
	case mode == CopyStateMutable && base.HasMutableHead():
		// another revision on the existing mutable HEAD
		prevState = base.Versions[base.Head].State
		inv.revision = base.revision + 1
	default:
		if base.Head != "" {
			prevState = base.Versions[base.Head].State
		}
		inv.Head = FormatVersionNum(base.HeadNum()+1, padding)
		if mode == CopyStateMutable {
			inv.revision = 1
		} else {
			inv.revision = 0
		}
	}
	for digest, paths := range prevState {
		newVersion.State[digest] = slices.Clone(paths)
	}
	inv.Versions[inv.Head] = newVersion

	return &Updater{
		inv:     inv,
		mutable: mode == CopyStateMutable,
	}, nil
}

// Head returns the version name the successor is building.
func (u *Updater) Head() string {
	return u.inv.Head
}

// RevisionNum returns the reserved mutable HEAD revision, 0 in immutable
// mode.
func (u *Updater) RevisionNum() int {
	if !u.mutable {
		return 0
	}
	return u.inv.revision
}

// ContentPrefix is the directory, relative to the object root, below
// which this update's new content paths live.
func (u *Updater) ContentPrefix() string {
	if u.mutable {
		return fmt.Sprintf("%s/%s/r%d", MutableHeadDir, u.inv.ContentDir(), u.inv.revision)
	}
	return u.inv.Head + "/" + u.inv.ContentDir()
}

// DigestAlgorithm returns the object's primary digest algorithm.
func (u *Updater) DigestAlgorithm() checksum.DigestAlgorithm {
	return u.inv.DigestAlgorithm
}

func (u *Updater) state() map[string][]string {
	return u.inv.Versions[u.inv.Head].State
}

func (u *Updater) unbindLogical(logicalPath string) bool {
	state := u.state()
	for digest, paths := range state {
		idx := slices.Index(paths, logicalPath)
		if idx < 0 {
			continue
		}
		paths = slices.Delete(paths, idx, idx+1)
		if len(paths) == 0 {
			delete(state, digest)
		} else {
			state[digest] = paths
		}
		return true
	}
	return false
}

func (u *Updater) bindLogical(digest, logicalPath string, overwrite bool) error {
	state := u.state()
	if cur := u.inv.Versions[u.inv.Head].DigestOf(logicalPath); cur != "" {
		if !overwrite {
			return ocflerrors.AlreadyExists("logical path '%s' already exists in %s", logicalPath, u.inv.Head)
		}
		u.unbindLogical(logicalPath)
	}
	state[digest] = append(state[digest], logicalPath)
	return nil
}

// AddFile binds a logical path to a digest in the successor state. When
// the digest is not yet in the manifest, contentPath is registered for it
// and isNew is true; a caller holding freshly staged bytes for a known
// digest must discard them.
func (u *Updater) AddFile(digest, logicalPath, contentPath string, overwrite bool) (isNew bool, err error) {
	digest = strings.ToLower(digest)
	if err := u.bindLogical(digest, logicalPath, overwrite); err != nil {
		return false, err
	}
	if !u.inv.HasDigest(digest) {
		u.inv.Manifest[digest] = []string{contentPath}
		return true, nil
	}
	return false, nil
}

// RemoveFile deletes a logical path from the successor state. Content
// whose digest is no longer referenced by any version is collected from
// the manifest on Build.
func (u *Updater) RemoveFile(logicalPath string) error {
	if !u.unbindLogical(logicalPath) {
		return ocflerrors.NotFound("logical path '%s' in %s", logicalPath, u.inv.Head)
	}
	return nil
}

// RenameFile rebinds the digest of src to dst. No new content path is
// created.
func (u *Updater) RenameFile(src, dst string, overwrite bool) error {
	digest := u.inv.Versions[u.inv.Head].DigestOf(src)
	if digest == "" {
		return ocflerrors.NotFound("logical path '%s' in %s", src, u.inv.Head)
	}
	if err := u.bindLogical(digest, dst, overwrite); err != nil {
		return err
	}
	if src != dst {
		u.unbindLogical(src)
	}
	return nil
}

// ReinstateFile binds dst to the digest that srcLogical had in
// srcVersion. No new content path is created.
func (u *Updater) ReinstateFile(srcVersion, srcLogical, dst string, overwrite bool) error {
	version, err := u.inv.GetVersion(srcVersion)
	if err != nil {
		return ocflerrors.NotFound("version '%s' of object '%s'", srcVersion, u.inv.Id)
	}
	digest := version.DigestOf(srcLogical)
	if digest == "" {
		return ocflerrors.NotFound("logical path '%s' in %s", srcLogical, srcVersion)
	}
	return u.bindLogical(digest, dst, overwrite)
}

// AddFixity records a digest of contentPath under an alternative
// algorithm.
func (u *Updater) AddFixity(alg checksum.DigestAlgorithm, digest, contentPath string) error {
	if !checksum.HashExists(alg) {
		return errors.Errorf("unknown digest algorithm '%s'", alg)
	}
	if u.inv.Fixity == nil {
		u.inv.Fixity = map[checksum.DigestAlgorithm]map[string][]string{}
	}
	if u.inv.Fixity[alg] == nil {
		u.inv.Fixity[alg] = map[string][]string{}
	}
	digest = strings.ToLower(digest)
	if !slices.Contains(u.inv.Fixity[alg][digest], contentPath) {
		u.inv.Fixity[alg][digest] = append(u.inv.Fixity[alg][digest], contentPath)
	}
	return nil
}

// HasDigest reports whether the successor manifest already carries the
// digest.
func (u *Updater) HasDigest(digest string) bool {
	return u.inv.HasDigest(digest)
}

// ContentPathOf returns the manifest content path of a digest, or "".
func (u *Updater) ContentPathOf(digest string) string {
	return u.inv.ContentPath(digest)
}

// LogicalPaths returns the logical paths currently bound in the successor
// state, sorted.
func (u *Updater) LogicalPaths() []string {
	return u.inv.Versions[u.inv.Head].LogicalPaths()
}

// StagedContentPaths returns the manifest content paths below this
// update's content prefix, i.e. the staged files that survive into the
// new version.
func (u *Updater) StagedContentPaths() []string {
	prefix := u.ContentPrefix() + "/"
	var result []string
	for _, paths := range u.inv.Manifest {
		for _, path := range paths {
			if strings.HasPrefix(path, prefix) {
				result = append(result, path)
			}
		}
	}
	slices.Sort(result)
	return result
}

// Build garbage-collects the manifest, validates the successor and
// returns it. The timestamp of the new version must be monotonic
// non-decreasing with respect to its predecessor.
func (u *Updater) Build() (*Inventory, error) {
	inv := u.inv
	headNum := inv.HeadNum()
	if headNum > 1 {
		prev := inv.Versions[FormatVersionNum(headNum-1, inv.Padding())]
		if prev != nil && inv.Versions[inv.Head].Created.Before(prev.Created.Time) {
			return nil, errors.Errorf("version timestamp %s lies before its predecessor %s",
				inv.Versions[inv.Head].Created.Format(time.RFC3339), prev.Created.Format(time.RFC3339))
		}
	}
	u.collectGarbage()
	if err := inv.Validate(); err != nil {
		return nil, errors.Wrapf(err, "successor inventory of '%s' is invalid", inv.Id)
	}
	return inv, nil
}

// collectGarbage drops manifest digests no version state references and
// fixity entries whose content paths left the manifest.
func (u *Updater) collectGarbage() {
	inv := u.inv
	referenced := map[string]bool{}
	for _, version := range inv.Versions {
		for digest := range version.State {
			referenced[digest] = true
		}
	}
	live := map[string]bool{}
	for digest, paths := range inv.Manifest {
		if !referenced[digest] {
			delete(inv.Manifest, digest)
			continue
		}
		for _, path := range paths {
			live[path] = true
		}
	}
	for alg, entries := range inv.Fixity {
		for digest, paths := range entries {
			var kept []string
			for _, path := range paths {
				if live[path] {
					kept = append(kept, path)
				}
			}
			if len(kept) == 0 {
				delete(entries, digest)
			} else {
				entries[digest] = kept
			}
		}
		if len(entries) == 0 {
			delete(inv.Fixity, alg)
		}
	}
	if len(inv.Fixity) == 0 {
		inv.Fixity = nil
	}
}
