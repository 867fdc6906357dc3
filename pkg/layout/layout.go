package layout

import (
	"encoding/json"

	"emperror.dev/errors"
)

// StorageLayout maps an object identifier to the object root path relative
// to the repository root.
type StorageLayout interface {
	Name() string
	Description() string
	MapObjectID(id string) (string, error)
	Config() any
}

// RootLayout is the shape of ocfl_layout.json in the repository root.
type RootLayout struct {
	Extension   string `json:"extension"`
	Description string `json:"description"`
}

func MarshalRootLayout(sl StorageLayout) ([]byte, error) {
	data, err := json.MarshalIndent(RootLayout{
		Extension:   sl.Name(),
		Description: sl.Description(),
	}, "", "   ")
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal root layout")
	}
	return append(data, '\n'), nil
}

func UnmarshalRootLayout(data []byte) (*RootLayout, error) {
	var rl = &RootLayout{}
	if err := json.Unmarshal(data, rl); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal root layout '%s'", string(data))
	}
	return rl, nil
}

// NewFromRootLayout instantiates the layout named by an ocfl_layout.json
// with its default configuration.
func NewFromRootLayout(rl *RootLayout) (StorageLayout, error) {
	switch rl.Extension {
	case LayoutFlatDirectName:
		return NewFlatDirect(&FlatDirectConfig{ExtensionName: LayoutFlatDirectName})
	case LayoutHashedNTupleName:
		return NewHashedNTuple(DefaultHashedNTupleConfig())
	default:
		return nil, errors.Errorf("unknown storage layout extension '%s'", rl.Extension)
	}
}
