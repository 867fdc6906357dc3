package inventory

import (
	"strings"

	"emperror.dev/errors"
	"github.com/ocfl-archive/ocflkit/pkg/checksum"
)

// Validate checks the invariants that must hold on any inventory that may
// be written to storage. All violations are collected and reported
// together.
func (i *Inventory) Validate() error {
	var multiErr = []error{}
	if i.Id == "" {
		multiErr = append(multiErr, errors.New("no object id"))
	}
	if i.Type != InventoryType1_1 {
		multiErr = append(multiErr, errors.Errorf("unknown inventory type '%s'", i.Type))
	}
	if !checksum.HashExists(i.DigestAlgorithm) {
		multiErr = append(multiErr, errors.Errorf("unknown digest algorithm '%s'", i.DigestAlgorithm))
	}
	if err := i.checkVersionSequence(); err != nil {
		multiErr = append(multiErr, err)
	}
	multiErr = append(multiErr, i.checkDigests()...)
	multiErr = append(multiErr, i.checkStateAgainstManifest()...)
	multiErr = append(multiErr, i.checkManifestPaths()...)
	return errors.Combine(multiErr...)
}

// checkVersionSequence verifies that versions are exactly v1..vHEAD with
// no gaps and consistent zero padding.
func (i *Inventory) checkVersionSequence() error {
	if len(i.Versions) == 0 {
		return errors.New("no versions")
	}
	headNum, err := ParseVersionNum(i.Head)
	if err != nil {
		return errors.Wrapf(err, "invalid head '%s'", i.Head)
	}
	padding := -1
	seen := map[int]bool{}
	for version := range i.Versions {
		num, err := ParseVersionNum(version)
		if err != nil {
			return errors.Wrapf(err, "invalid version name '%s'", version)
		}
		if seen[num] {
			return errors.Errorf("duplicate version number %d", num)
		}
		seen[num] = true
		p := paddingOf(version)
		if padding == -1 {
			padding = p
		} else if padding != p {
			return errors.New("inconsistent version number padding")
		}
	}
	if len(seen) != headNum {
		return errors.Errorf("head is %s but inventory has %d versions", i.Head, len(seen))
	}
	for n := 1; n <= headNum; n++ {
		if !seen[n] {
			return errors.Errorf("version sequence has a gap at v%d", n)
		}
	}
	return nil
}

// checkDigests verifies that every manifest and state digest is lowercase
// hex of the correct length for the digest algorithm.
func (i *Inventory) checkDigests() []error {
	var multiErr = []error{}
	for digest := range i.Manifest {
		if !checksum.ValidDigest(i.DigestAlgorithm, digest) {
			multiErr = append(multiErr, errors.Errorf("manifest digest '%s' is not a valid %s digest", digest, i.DigestAlgorithm))
		}
	}
	for name, version := range i.Versions {
		for digest := range version.State {
			if !checksum.ValidDigest(i.DigestAlgorithm, digest) {
				multiErr = append(multiErr, errors.Errorf("state digest '%s' of %s is not a valid %s digest", digest, name, i.DigestAlgorithm))
			}
		}
	}
	return multiErr
}

// checkStateAgainstManifest verifies that every state digest exists in the
// manifest and every logical path appears under exactly one digest per
// version.
func (i *Inventory) checkStateAgainstManifest() []error {
	var multiErr = []error{}
	for name, version := range i.Versions {
		logical := map[string]string{}
		for digest, paths := range version.State {
			if _, ok := i.Manifest[digest]; !ok {
				multiErr = append(multiErr, errors.Errorf("state digest '%s' of %s is not in the manifest", digest, name))
			}
			for _, path := range paths {
				if other, ok := logical[path]; ok && other != digest {
					multiErr = append(multiErr, errors.Errorf("logical path '%s' of %s appears under more than one digest", path, name))
				}
				logical[path] = digest
			}
		}
	}
	return multiErr
}

// checkManifestPaths verifies that every content path lies under an
// existing version (or the mutable HEAD dir) and appears under exactly one
// digest.
func (i *Inventory) checkManifestPaths() []error {
	var multiErr = []error{}
	headNum := i.HeadNum()
	seen := map[string]string{}
	for digest, paths := range i.Manifest {
		for _, path := range paths {
			if other, ok := seen[path]; ok && other != digest {
				multiErr = append(multiErr, errors.Errorf("content path '%s' appears under more than one digest", path))
			}
			seen[path] = digest
			if strings.HasPrefix(path, MutableHeadDir+"/") {
				continue
			}
			version, _, found := strings.Cut(path, "/")
			if !found {
				multiErr = append(multiErr, errors.Errorf("content path '%s' is not inside a version directory", path))
				continue
			}
			num, err := ParseVersionNum(version)
			if err != nil {
				multiErr = append(multiErr, errors.Errorf("content path '%s' is not inside a version directory", path))
				continue
			}
			if num > headNum {
				multiErr = append(multiErr, errors.Errorf("content path '%s' lies above head %s", path, i.Head))
			}
		}
	}
	return multiErr
}
