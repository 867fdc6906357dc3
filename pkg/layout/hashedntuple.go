package layout

import (
	"fmt"
	"strings"

	"emperror.dev/errors"
	"github.com/ocfl-archive/ocflkit/pkg/checksum"
)

const LayoutHashedNTupleName = "0004-hashed-n-tuple-storage-layout"
const LayoutHashedNTupleDescription = "Hashed N-tuple Storage Layout"

type HashedNTupleConfig struct {
	ExtensionName   string `json:"extensionName"`
	DigestAlgorithm string `json:"digestAlgorithm"`
	TupleSize       int    `json:"tupleSize"`
	NumberOfTuples  int    `json:"numberOfTuples"`
	ShortObjectRoot bool   `json:"shortObjectRoot"`
}

func DefaultHashedNTupleConfig() *HashedNTupleConfig {
	return &HashedNTupleConfig{
		ExtensionName:   LayoutHashedNTupleName,
		DigestAlgorithm: string(checksum.DigestSHA256),
		TupleSize:       3,
		NumberOfTuples:  3,
		ShortObjectRoot: false,
	}
}

type HashedNTuple struct {
	*HashedNTupleConfig
}

func NewHashedNTuple(config *HashedNTupleConfig) (*HashedNTuple, error) {
	if config.NumberOfTuples > 32 {
		config.NumberOfTuples = 32
	}
	if config.TupleSize > 32 {
		config.TupleSize = 32
	}
	if config.TupleSize == 0 || config.NumberOfTuples == 0 {
		config.NumberOfTuples = 0
		config.TupleSize = 0
	}
	sl := &HashedNTuple{HashedNTupleConfig: config}
	if !checksum.HashExists(checksum.DigestAlgorithm(config.DigestAlgorithm)) {
		return nil, errors.Errorf("invalid hash %s", config.DigestAlgorithm)
	}
	if config.ExtensionName != sl.Name() {
		return nil, errors.Errorf("invalid extension name %s for extension %s", config.ExtensionName, sl.Name())
	}
	return sl, nil
}

func (sl *HashedNTuple) Name() string        { return LayoutHashedNTupleName }
func (sl *HashedNTuple) Description() string { return LayoutHashedNTupleDescription }
func (sl *HashedNTuple) Config() any         { return sl.HashedNTupleConfig }

func (sl *HashedNTuple) MapObjectID(id string) (string, error) {
	h, err := checksum.GetHash(checksum.DigestAlgorithm(sl.DigestAlgorithm))
	if err != nil {
		return "", errors.Wrapf(err, "invalid hash %s", sl.DigestAlgorithm)
	}
	if _, err := h.Write([]byte(id)); err != nil {
		return "", errors.Wrapf(err, "cannot hash %s", id)
	}
	digest := fmt.Sprintf("%x", h.Sum(nil))
	if len(digest) < sl.TupleSize*sl.NumberOfTuples {
		return "", errors.Errorf("digest %s too short for %v tuples of %v chars", sl.DigestAlgorithm, sl.NumberOfTuples, sl.TupleSize)
	}
	dirparts := []string{}
	for i := 0; i < sl.NumberOfTuples; i++ {
		dirparts = append(dirparts, digest[i*sl.TupleSize:(i+1)*sl.TupleSize])
	}
	if sl.ShortObjectRoot {
		dirparts = append(dirparts, digest[sl.NumberOfTuples*sl.TupleSize:])
	} else {
		dirparts = append(dirparts, digest)
	}
	return strings.Join(dirparts, "/"), nil
}

var (
	_ StorageLayout = &HashedNTuple{}
)
