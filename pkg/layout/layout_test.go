package layout

import (
	"testing"

	"github.com/ocfl-archive/ocflkit/pkg/checksum"
)

func TestHashedNTuple(t *testing.T) {
	// https://ocfl.github.io/extensions/0004-hashed-n-tuple-storage-layout.html
	// Example 1
	l, err := NewHashedNTuple(&HashedNTupleConfig{
		ExtensionName:   LayoutHashedNTupleName,
		DigestAlgorithm: string(checksum.DigestSHA256),
		TupleSize:       3,
		NumberOfTuples:  3,
		ShortObjectRoot: false,
	})
	if err != nil {
		t.Fatalf("error calling NewHashedNTuple(%s, %v, %v, %v) - %v", checksum.DigestSHA256, 3, 3, false, err)
	}
	tests := []struct {
		objectID string
		result   string
	}{
		{"object-01", "3c0/ff4/240/3c0ff4240c1e116dba14c7627f2319b58aa3d77606d0d90dfc6161608ac987d4"},
		{"..hor/rib:le-$id", "487/326/d8c/487326d8c2a3c0b885e23da1469b4d6671fd4e76978924b4443e9e3c316cda6d"},
	}
	for _, test := range tests {
		rootPath, err := l.MapObjectID(test.objectID)
		if err != nil {
			t.Errorf("cannot convert %s - %v", test.objectID, err)
			continue
		}
		if rootPath != test.result {
			t.Errorf("%s -> %s != %s", test.objectID, rootPath, test.result)
		}
	}

	// Example 2
	l, err = NewHashedNTuple(&HashedNTupleConfig{
		ExtensionName:   LayoutHashedNTupleName,
		DigestAlgorithm: string(checksum.DigestMD5),
		TupleSize:       2,
		NumberOfTuples:  15,
		ShortObjectRoot: true,
	})
	if err != nil {
		t.Fatalf("error calling NewHashedNTuple(%s, %v, %v, %v) - %v", checksum.DigestMD5, 2, 15, true, err)
	}
	tests = []struct {
		objectID string
		result   string
	}{
		{"object-01", "ff/75/53/44/92/48/5e/ab/b3/9f/86/35/67/28/88/4e"},
		{"..hor/rib:le-$id", "08/31/97/66/fb/6c/29/35/dd/17/5b/94/26/77/17/e0"},
	}
	for _, test := range tests {
		rootPath, err := l.MapObjectID(test.objectID)
		if err != nil {
			t.Errorf("cannot convert %s - %v", test.objectID, err)
			continue
		}
		if rootPath != test.result {
			t.Errorf("%s -> %s != %s", test.objectID, rootPath, test.result)
		}
	}
}

func TestFlatDirect(t *testing.T) {
	l, err := NewFlatDirect(&FlatDirectConfig{ExtensionName: LayoutFlatDirectName})
	if err != nil {
		t.Fatalf("NewFlatDirect - %v", err)
	}
	rootPath, err := l.MapObjectID("object-01")
	if err != nil {
		t.Fatalf("MapObjectID - %v", err)
	}
	if rootPath != "object-01" {
		t.Errorf("object-01 -> %s", rootPath)
	}
	if _, err := l.MapObjectID("a/b"); err == nil {
		t.Error("id with slash must be rejected")
	}
}

func TestRootLayoutRoundTrip(t *testing.T) {
	l, _ := NewHashedNTuple(DefaultHashedNTupleConfig())
	data, err := MarshalRootLayout(l)
	if err != nil {
		t.Fatalf("MarshalRootLayout - %v", err)
	}
	rl, err := UnmarshalRootLayout(data)
	if err != nil {
		t.Fatalf("UnmarshalRootLayout - %v", err)
	}
	if rl.Extension != LayoutHashedNTupleName {
		t.Errorf("extension %s", rl.Extension)
	}
	l2, err := NewFromRootLayout(rl)
	if err != nil {
		t.Fatalf("NewFromRootLayout - %v", err)
	}
	if l2.Name() != l.Name() {
		t.Errorf("layout name %s != %s", l2.Name(), l.Name())
	}
}
