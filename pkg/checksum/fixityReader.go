package checksum

import (
	"fmt"
	"hash"
	"io"

	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

// FixityReader is a pass-through reader that feeds every byte handed to the
// consumer into a digest. When an expected digest is set, the accumulated
// digest is verified on end-of-stream and on CheckFixity.
type FixityReader struct {
	src      io.Reader
	sink     hash.Hash
	csType   DigestAlgorithm
	expected string
}

func NewFixityReader(src io.Reader, csType DigestAlgorithm) (*FixityReader, error) {
	sink, err := GetHash(csType)
	if err != nil {
		return nil, err
	}
	return &FixityReader{src: src, sink: sink, csType: csType}, nil
}

// NewFixityCheckReader returns a FixityReader that fails the stream with a
// fixity mismatch if the content digest does not equal expected.
func NewFixityCheckReader(src io.Reader, csType DigestAlgorithm, expected string) (*FixityReader, error) {
	fr, err := NewFixityReader(src, csType)
	if err != nil {
		return nil, err
	}
	fr.expected = expected
	return fr, nil
}

func (f *FixityReader) Read(p []byte) (int, error) {
	n, err := f.src.Read(p)
	if n > 0 {
		// hash.Hash writes never fail
		f.sink.Write(p[:n])
	}
	if err == io.EOF {
		if f.expected != "" {
			if cerr := f.CheckFixity(); cerr != nil {
				return n, cerr
			}
		}
	}
	return n, err
}

// Digest returns the digest of all bytes read so far.
func (f *FixityReader) Digest() string {
	return fmt.Sprintf("%x", f.sink.Sum(nil))
}

func (f *FixityReader) Algorithm() DigestAlgorithm {
	return f.csType
}

// CheckFixity compares the accumulated digest against the expected value.
func (f *FixityReader) CheckFixity() error {
	if f.expected == "" {
		return nil
	}
	actual := f.Digest()
	if !Equal(actual, f.expected) {
		return ocflerrors.FixityMismatch("%s digest %s does not match expected %s", f.csType, actual, f.expected)
	}
	return nil
}
