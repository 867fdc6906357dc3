package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/maps"
)

type DigestAlgorithm string

const (
	DigestMD5        DigestAlgorithm = "md5"
	DigestSHA1       DigestAlgorithm = "sha1"
	DigestSHA256     DigestAlgorithm = "sha256"
	DigestSHA512     DigestAlgorithm = "sha512"
	DigestBlake2b160 DigestAlgorithm = "blake2b-160"
	DigestBlake2b256 DigestAlgorithm = "blake2b-256"
	DigestBlake2b384 DigestAlgorithm = "blake2b-384"
	DigestBlake2b512 DigestAlgorithm = "blake2b-512"
)

var hashFunc = map[DigestAlgorithm]func() hash.Hash{
	DigestMD5:    md5.New,
	DigestSHA1:   sha1.New,
	DigestSHA256: sha256.New,
	DigestSHA512: sha512.New,
	DigestBlake2b160: func() hash.Hash {
		h, err := blake2b.New(20, nil)
		if err != nil {
			panic(err)
		}
		return h
	},
	DigestBlake2b256: func() hash.Hash {
		h, err := blake2b.New256(nil)
		if err != nil {
			panic(err)
		}
		return h
	},
	DigestBlake2b384: func() hash.Hash {
		h, err := blake2b.New384(nil)
		if err != nil {
			panic(err)
		}
		return h
	},
	DigestBlake2b512: func() hash.Hash {
		h, err := blake2b.New512(nil)
		if err != nil {
			panic(err)
		}
		return h
	},
}

// hexLength is the length of the lowercase hex form per algorithm.
var hexLength = map[DigestAlgorithm]int{
	DigestMD5:        32,
	DigestSHA1:       40,
	DigestSHA256:     64,
	DigestSHA512:     128,
	DigestBlake2b160: 40,
	DigestBlake2b256: 64,
	DigestBlake2b384: 96,
	DigestBlake2b512: 128,
}

var DigestNames = maps.Keys(hashFunc)

func HashExists(csType DigestAlgorithm) bool {
	_, ok := hashFunc[csType]
	return ok
}

func GetHash(csType DigestAlgorithm) (hash.Hash, error) {
	f, ok := hashFunc[csType]
	if !ok {
		return nil, fmt.Errorf("unknown checksum %s", csType)
	}
	return f(), nil
}

func HexLength(csType DigestAlgorithm) int {
	return hexLength[csType]
}

// ValidDigest reports whether digest is a well-formed lowercase hex digest
// for the given algorithm.
func ValidDigest(csType DigestAlgorithm, digest string) bool {
	l, ok := hexLength[csType]
	if !ok || len(digest) != l {
		return false
	}
	for _, r := range digest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Equal compares two hex digests case-insensitively.
func Equal(d1, d2 string) bool {
	return strings.EqualFold(d1, d2)
}
