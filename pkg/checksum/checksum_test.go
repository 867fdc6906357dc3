package checksum

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

const helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
const helloSHA512 = "9b71d224bd62f3785d96d46ad3ea3d73319bfbc2890caadae2dff72519673ca72323c3d99ba5c11d7c7acc6e14b8c5da0c4663475c2e5c3adef46f73bcdec043"
const helloMD5 = "5d41402abc4b2a76b9719d911017c592"

func TestChecksum(t *testing.T) {
	tests := []struct {
		alg    DigestAlgorithm
		result string
	}{
		{DigestSHA256, helloSHA256},
		{DigestSHA512, helloSHA512},
		{DigestMD5, helloMD5},
	}
	for _, test := range tests {
		cs, err := Checksum(strings.NewReader("hello"), test.alg)
		if err != nil {
			t.Errorf("Checksum(hello, %s) - %v", test.alg, err)
			continue
		}
		if cs != test.result {
			t.Errorf("Checksum(hello, %s) -> %s != %s", test.alg, cs, test.result)
		}
	}
}

func TestChecksumWriter(t *testing.T) {
	var buf bytes.Buffer
	css, err := Copy(&buf, strings.NewReader("hello"), []DigestAlgorithm{DigestSHA512, DigestSHA256, DigestMD5})
	if err != nil {
		t.Fatalf("Copy - %v", err)
	}
	if buf.String() != "hello" {
		t.Errorf("destination got '%s'", buf.String())
	}
	if css[DigestSHA512] != helloSHA512 {
		t.Errorf("sha512 %s != %s", css[DigestSHA512], helloSHA512)
	}
	if css[DigestSHA256] != helloSHA256 {
		t.Errorf("sha256 %s != %s", css[DigestSHA256], helloSHA256)
	}
	if css[DigestMD5] != helloMD5 {
		t.Errorf("md5 %s != %s", css[DigestMD5], helloMD5)
	}
}

func TestValidDigest(t *testing.T) {
	if !ValidDigest(DigestSHA256, helloSHA256) {
		t.Errorf("%s should be valid sha256", helloSHA256)
	}
	if ValidDigest(DigestSHA256, strings.ToUpper(helloSHA256)) {
		t.Error("uppercase digest should be invalid")
	}
	if ValidDigest(DigestSHA512, helloSHA256) {
		t.Error("sha256 length digest should not be a valid sha512")
	}
}

func TestFixityReaderOK(t *testing.T) {
	fr, err := NewFixityCheckReader(strings.NewReader("hello"), DigestSHA512, strings.ToUpper(helloSHA512))
	if err != nil {
		t.Fatalf("NewFixityCheckReader - %v", err)
	}
	data, err := io.ReadAll(fr)
	if err != nil {
		t.Fatalf("ReadAll - %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("read '%s'", string(data))
	}
	if err := fr.CheckFixity(); err != nil {
		t.Errorf("CheckFixity - %v", err)
	}
}

func TestFixityReaderMismatch(t *testing.T) {
	fr, err := NewFixityCheckReader(strings.NewReader("hello world"), DigestSHA512, helloSHA512)
	if err != nil {
		t.Fatalf("NewFixityCheckReader - %v", err)
	}
	_, err = io.ReadAll(fr)
	if err == nil {
		t.Fatal("expected fixity mismatch")
	}
	if !ocflerrors.Is(err, ocflerrors.ErrFixityMismatch) {
		t.Errorf("expected ErrFixityMismatch, got %v", err)
	}
}

func TestFixityReaderDigestOnly(t *testing.T) {
	fr, err := NewFixityReader(strings.NewReader("hello"), DigestMD5)
	if err != nil {
		t.Fatalf("NewFixityReader - %v", err)
	}
	if _, err := io.ReadAll(fr); err != nil {
		t.Fatalf("ReadAll - %v", err)
	}
	if fr.Digest() != helloMD5 {
		t.Errorf("digest %s != %s", fr.Digest(), helloMD5)
	}
}
