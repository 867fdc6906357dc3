package inventory

import (
	"strings"
	"time"

	"emperror.dev/errors"
)

// CommitMutableHead folds a mutable HEAD inventory into the inventory of
// the next immutable version: content paths move from the extension
// overlay into the version directory and the version metadata is replaced
// by the commit call's info. The input is not modified.
func CommitMutableHead(mutable *Inventory, info VersionInfo) (*Inventory, error) {
	if !mutable.HasMutableHead() {
		return nil, errors.Errorf("object '%s' has no mutable HEAD", mutable.Id)
	}
	inv := mutable.Copy()
	inv.revision = 0

	prefix := MutableHeadDir + "/"
	rewrite := func(path string) string {
		if rest, ok := strings.CutPrefix(path, prefix); ok {
			return inv.Head + "/" + rest
		}
		return path
	}
	for digest, paths := range inv.Manifest {
		for n, path := range paths {
			paths[n] = rewrite(path)
		}
		inv.Manifest[digest] = paths
	}
	for _, entries := range inv.Fixity {
		for digest, paths := range entries {
			for n, path := range paths {
				paths[n] = rewrite(path)
			}
			entries[digest] = paths
		}
	}

	head := inv.Versions[inv.Head]
	head.Created = OCFLTime{info.Created}
	head.Message = info.Message
	head.User = info.User

	headNum := inv.HeadNum()
	if headNum > 1 {
		prev := inv.Versions[FormatVersionNum(headNum-1, inv.Padding())]
		if prev != nil && head.Created.Before(prev.Created.Time) {
			return nil, errors.Errorf("commit timestamp %s lies before version %s",
				head.Created.Format(time.RFC3339), FormatVersionNum(headNum-1, inv.Padding()))
		}
	}
	if err := inv.Validate(); err != nil {
		return nil, errors.Wrapf(err, "folded inventory of '%s' is invalid", inv.Id)
	}
	return inv, nil
}
