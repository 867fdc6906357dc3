package checksum

import (
	"fmt"
	"io"
	"sync"

	"emperror.dev/errors"
)

type rwStruct struct {
	reader *io.PipeReader
	writer *io.PipeWriter
}

// ChecksumWriter fans written bytes out to a destination writer and one
// hash goroutine per requested algorithm. Checksums become available after
// Close.
type ChecksumWriter struct {
	checksums []DigestAlgorithm
	dst       io.Writer
	rws       map[DigestAlgorithm]rwStruct
	cs        map[DigestAlgorithm]string
	errs      []error
	done      chan bool
	dataLock  sync.Mutex
	closed    bool
}

func NewChecksumWriter(checksums []DigestAlgorithm, dst io.Writer) *ChecksumWriter {
	c := &ChecksumWriter{
		checksums: checksums,
		dst:       dst,
		rws:       map[DigestAlgorithm]rwStruct{},
		cs:        map[DigestAlgorithm]string{},
		errs:      []error{},
		done:      make(chan bool),
	}
	for _, csType := range c.checksums {
		rw := rwStruct{}
		rw.reader, rw.writer = io.Pipe()
		c.rws[csType] = rw
		go c.doChecksum(rw.reader, csType)
	}
	return c
}

func (c *ChecksumWriter) doChecksum(reader io.Reader, csType DigestAlgorithm) {
	defer func() { c.done <- true }()

	sink, err := GetHash(csType)
	if err != nil {
		c.setError(errors.Errorf("invalid hash function %s", csType))
		io.Copy(NewNullWriter(), reader)
		return
	}
	if _, err := io.Copy(sink, reader); err != nil {
		c.setError(errors.Wrapf(err, "cannot create checksum %s", csType))
		return
	}
	c.setResult(csType, fmt.Sprintf("%x", sink.Sum(nil)))
}

func (c *ChecksumWriter) setResult(csType DigestAlgorithm, checksum string) {
	c.dataLock.Lock()
	defer c.dataLock.Unlock()
	c.cs[csType] = checksum
}

func (c *ChecksumWriter) setError(err error) {
	c.dataLock.Lock()
	defer c.dataLock.Unlock()
	c.errs = append(c.errs, err)
}

func (c *ChecksumWriter) Write(p []byte) (int, error) {
	for _, rw := range c.rws {
		if _, err := rw.writer.Write(p); err != nil {
			return 0, errors.Wrap(err, "cannot write to checksum pipe")
		}
	}
	n, err := c.dst.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "cannot write to destination")
	}
	return n, nil
}

func (c *ChecksumWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	for _, rw := range c.rws {
		rw.writer.Close()
	}
	for range c.checksums {
		<-c.done
	}
	c.dataLock.Lock()
	defer c.dataLock.Unlock()
	return errors.Combine(c.errs...)
}

// GetChecksums returns the accumulated digests. Only valid after Close.
func (c *ChecksumWriter) GetChecksums() map[DigestAlgorithm]string {
	c.dataLock.Lock()
	defer c.dataLock.Unlock()
	result := make(map[DigestAlgorithm]string, len(c.cs))
	for k, v := range c.cs {
		result[k] = v
	}
	return result
}

// Copy streams src to dst computing all requested checksums on the way.
func Copy(dst io.Writer, src io.Reader, checksums []DigestAlgorithm) (map[DigestAlgorithm]string, error) {
	cw := NewChecksumWriter(checksums, dst)
	if _, err := io.Copy(cw, src); err != nil {
		cw.Close()
		return nil, errors.Wrap(err, "cannot copy")
	}
	if err := cw.Close(); err != nil {
		return nil, errors.Wrap(err, "error closing checksum writer")
	}
	return cw.GetChecksums(), nil
}

func Checksum(src io.Reader, checksum DigestAlgorithm) (string, error) {
	sink, err := GetHash(checksum)
	if err != nil {
		return "", errors.Errorf("invalid checksum type %s", checksum)
	}
	if _, err := io.Copy(sink, src); err != nil {
		return "", errors.Wrapf(err, "cannot create checksum %s", checksum)
	}
	return fmt.Sprintf("%x", sink.Sum(nil)), nil
}
