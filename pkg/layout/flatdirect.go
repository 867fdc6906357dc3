package layout

import (
	"strings"

	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

const LayoutFlatDirectName = "0002-flat-direct-storage-layout"
const LayoutFlatDirectDescription = "one to one mapping without changes"

type FlatDirectConfig struct {
	ExtensionName string `json:"extensionName"`
}

type FlatDirect struct {
	*FlatDirectConfig
}

func NewFlatDirect(config *FlatDirectConfig) (*FlatDirect, error) {
	sl := &FlatDirect{FlatDirectConfig: config}
	if config.ExtensionName != sl.Name() {
		return nil, ocflerrors.InvalidPath("invalid extension name '%s' for extension %s", config.ExtensionName, sl.Name())
	}
	return sl, nil
}

func (sl *FlatDirect) Name() string        { return LayoutFlatDirectName }
func (sl *FlatDirect) Description() string { return LayoutFlatDirectDescription }
func (sl *FlatDirect) Config() any         { return sl.FlatDirectConfig }

// MapObjectID uses the identifier itself as the object root name. Path
// separators would escape the repository root and are rejected.
func (sl *FlatDirect) MapObjectID(id string) (string, error) {
	if id == "" {
		return "", ocflerrors.InvalidPath("empty object id")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return "", ocflerrors.InvalidPath("object id '%s' cannot be used as a directory name", id)
	}
	return id, nil
}

var (
	_ StorageLayout = &FlatDirect{}
)
