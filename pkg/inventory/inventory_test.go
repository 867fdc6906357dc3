package inventory

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/ocfl-archive/ocflkit/pkg/checksum"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

var (
	dA = strings.Repeat("a", 128)
	dB = strings.Repeat("b", 128)
	dC = strings.Repeat("c", 128)
)

func t0() time.Time {
	return time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)
}

func newTestInventory(t *testing.T) *Inventory {
	t.Helper()
	inv, err := NewInventory("object-01", checksum.DigestSHA512, "")
	if err != nil {
		t.Fatalf("NewInventory - %v", err)
	}
	return inv
}

// buildV1 produces v1 with f.txt -> dA
func buildV1(t *testing.T) *Inventory {
	t.Helper()
	stub := newTestInventory(t)
	u, err := NewUpdater(stub, CopyState, VersionInfo{Created: t0(), Message: "initial"})
	if err != nil {
		t.Fatalf("NewUpdater - %v", err)
	}
	if u.Head() != "v1" {
		t.Fatalf("head %s != v1", u.Head())
	}
	isNew, err := u.AddFile(dA, "f.txt", "v1/content/f.txt", false)
	if err != nil || !isNew {
		t.Fatalf("AddFile - %v, isNew=%v", err, isNew)
	}
	inv, err := u.Build()
	if err != nil {
		t.Fatalf("Build - %v", err)
	}
	return inv
}

func TestFirstVersion(t *testing.T) {
	inv := buildV1(t)
	if inv.Head != "v1" {
		t.Errorf("head %s", inv.Head)
	}
	if diff := deep.Equal(inv.Manifest, map[string][]string{dA: {"v1/content/f.txt"}}); diff != nil {
		t.Errorf("manifest: %v", diff)
	}
	if inv.Versions["v1"].DigestOf("f.txt") != dA {
		t.Error("f.txt not bound to digest")
	}
	if err := inv.Validate(); err != nil {
		t.Errorf("Validate - %v", err)
	}
}

func TestAddFileDuplicateLogicalPath(t *testing.T) {
	inv := buildV1(t)
	u, err := NewUpdater(inv, CopyState, VersionInfo{Created: t0().Add(time.Hour)})
	if err != nil {
		t.Fatalf("NewUpdater - %v", err)
	}
	_, err = u.AddFile(dB, "f.txt", "v2/content/f.txt", false)
	if !ocflerrors.Is(err, ocflerrors.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	isNew, err := u.AddFile(dB, "f.txt", "v2/content/f.txt", true)
	if err != nil || !isNew {
		t.Errorf("overwrite AddFile - %v, isNew=%v", err, isNew)
	}
	next, err := u.Build()
	if err != nil {
		t.Fatalf("Build - %v", err)
	}
	if next.Versions["v2"].DigestOf("f.txt") != dB {
		t.Error("f.txt must now map to dB")
	}
	// dA is still referenced by v1, must survive in manifest
	if !next.HasDigest(dA) {
		t.Error("dA must stay in the manifest")
	}
}

func TestDeduplication(t *testing.T) {
	inv := buildV1(t)
	u, _ := NewUpdater(inv, CopyState, VersionInfo{Created: t0().Add(time.Hour)})
	isNew, err := u.AddFile(dA, "copy.txt", "v2/content/copy.txt", false)
	if err != nil {
		t.Fatalf("AddFile - %v", err)
	}
	if isNew {
		t.Error("digest already known, content path must not be added")
	}
	next, err := u.Build()
	if err != nil {
		t.Fatalf("Build - %v", err)
	}
	if diff := deep.Equal(next.Manifest[dA], []string{"v1/content/f.txt"}); diff != nil {
		t.Errorf("manifest entry: %v", diff)
	}
	if len(next.Versions["v2"].State[dA]) != 2 {
		t.Errorf("both logical paths must map to dA: %v", next.Versions["v2"].State[dA])
	}
	if len(u.StagedContentPaths()) != 0 {
		t.Errorf("no staged content expected, got %v", u.StagedContentPaths())
	}
}

func TestRemoveFileAndGC(t *testing.T) {
	inv := buildV1(t)
	u, _ := NewUpdater(inv, CopyState, VersionInfo{Created: t0().Add(time.Hour)})
	// add and remove within one update: content path must be collected
	if _, err := u.AddFile(dB, "tmp.txt", "v2/content/tmp.txt", false); err != nil {
		t.Fatalf("AddFile - %v", err)
	}
	if err := u.RemoveFile("tmp.txt"); err != nil {
		t.Fatalf("RemoveFile - %v", err)
	}
	if err := u.RemoveFile("nothing.txt"); !ocflerrors.Is(err, ocflerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	next, err := u.Build()
	if err != nil {
		t.Fatalf("Build - %v", err)
	}
	if next.HasDigest(dB) {
		t.Error("dB must be garbage collected")
	}
	// dA still referenced by v1 state even though v2 still holds it
	if !next.HasDigest(dA) {
		t.Error("dA must survive")
	}
}

func TestRenameFile(t *testing.T) {
	inv := buildV1(t)
	u, _ := NewUpdater(inv, CopyState, VersionInfo{Created: t0().Add(time.Hour)})
	if err := u.RenameFile("f.txt", "renamed.txt", false); err != nil {
		t.Fatalf("RenameFile - %v", err)
	}
	next, err := u.Build()
	if err != nil {
		t.Fatalf("Build - %v", err)
	}
	v2 := next.Versions["v2"]
	if v2.DigestOf("f.txt") != "" {
		t.Error("f.txt must be gone")
	}
	if v2.DigestOf("renamed.txt") != dA {
		t.Error("renamed.txt must be bound to dA")
	}
	if diff := deep.Equal(next.Manifest[dA], []string{"v1/content/f.txt"}); diff != nil {
		t.Errorf("manifest must be unchanged: %v", diff)
	}
}

func TestReinstateFile(t *testing.T) {
	inv := buildV1(t)
	// v2 removes f.txt
	u, _ := NewUpdater(inv, CopyState, VersionInfo{Created: t0().Add(time.Hour)})
	if err := u.RemoveFile("f.txt"); err != nil {
		t.Fatalf("RemoveFile - %v", err)
	}
	v2, err := u.Build()
	if err != nil {
		t.Fatalf("Build - %v", err)
	}
	// v3 reinstates it from v1
	u, _ = NewUpdater(v2, CopyState, VersionInfo{Created: t0().Add(2 * time.Hour)})
	if err := u.ReinstateFile("v1", "f.txt", "f.txt", false); err != nil {
		t.Fatalf("ReinstateFile - %v", err)
	}
	if err := u.ReinstateFile("v1", "missing", "x", false); !ocflerrors.Is(err, ocflerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	v3, err := u.Build()
	if err != nil {
		t.Fatalf("Build - %v", err)
	}
	if v3.Versions["v3"].DigestOf("f.txt") != dA {
		t.Error("f.txt must be reinstated to dA")
	}
}

func TestTimestampMonotonic(t *testing.T) {
	inv := buildV1(t)
	u, _ := NewUpdater(inv, CopyState, VersionInfo{Created: t0().Add(-time.Hour)})
	if _, err := u.Build(); err == nil {
		t.Error("decreasing timestamp must fail")
	}
}

func TestRemoveAllLeavesEmptyState(t *testing.T) {
	inv := buildV1(t)
	u, _ := NewUpdater(inv, CopyState, VersionInfo{Created: t0().Add(time.Hour)})
	if err := u.RemoveFile("f.txt"); err != nil {
		t.Fatalf("RemoveFile - %v", err)
	}
	next, err := u.Build()
	if err != nil {
		t.Fatalf("Build - %v", err)
	}
	if len(next.Versions["v2"].State) != 0 {
		t.Errorf("v2 state must be empty: %v", next.Versions["v2"].State)
	}
	if len(u.StagedContentPaths()) != 0 {
		t.Error("no staged content expected")
	}
}

func TestMutableUpdater(t *testing.T) {
	inv := buildV1(t)
	u, err := NewUpdater(inv, CopyStateMutable, VersionInfo{Created: t0().Add(time.Hour)})
	if err != nil {
		t.Fatalf("NewUpdater - %v", err)
	}
	if u.Head() != "v2" || u.RevisionNum() != 1 {
		t.Fatalf("head %s revision %d", u.Head(), u.RevisionNum())
	}
	wantPrefix := "extensions/0005-mutable-head-0.1/head/content/r1"
	if u.ContentPrefix() != wantPrefix {
		t.Fatalf("content prefix %s != %s", u.ContentPrefix(), wantPrefix)
	}
	if _, err := u.AddFile(dB, "staged.txt", wantPrefix+"/staged.txt", false); err != nil {
		t.Fatalf("AddFile - %v", err)
	}
	mutable, err := u.Build()
	if err != nil {
		t.Fatalf("Build - %v", err)
	}
	if !mutable.HasMutableHead() || mutable.RevisionNum() != 1 {
		t.Error("inventory must carry revision 1")
	}

	// a second stage call revs to r2, head stays v2
	u2, err := NewUpdater(mutable, CopyStateMutable, VersionInfo{Created: t0().Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("NewUpdater - %v", err)
	}
	if u2.Head() != "v2" || u2.RevisionNum() != 2 {
		t.Fatalf("head %s revision %d", u2.Head(), u2.RevisionNum())
	}
	if u2.ContentPrefix() != "extensions/0005-mutable-head-0.1/head/content/r2" {
		t.Fatalf("content prefix %s", u2.ContentPrefix())
	}
	// the staged file of r1 is visible in the working state
	if mutable.Versions["v2"].DigestOf("staged.txt") != dB {
		t.Error("staged.txt must stay bound")
	}

	// an immutable update on a mutable HEAD is rejected
	if _, err := NewUpdater(mutable, CopyState, VersionInfo{Created: t0()}); !ocflerrors.Is(err, ocflerrors.ErrObjectOutOfSync) {
		t.Errorf("expected ErrObjectOutOfSync, got %v", err)
	}
}

func TestValidateCatchesCorruption(t *testing.T) {
	inv := buildV1(t)

	broken := inv.Copy()
	broken.Head = "v2"
	if err := broken.Validate(); err == nil {
		t.Error("gap in version sequence must fail")
	}

	broken = inv.Copy()
	broken.Versions["v1"].State[dC] = []string{"ghost.txt"}
	if err := broken.Validate(); err == nil {
		t.Error("state digest missing from manifest must fail")
	}

	broken = inv.Copy()
	broken.Manifest[strings.ToUpper(dB)] = []string{"v1/content/up.txt"}
	if err := broken.Validate(); err == nil {
		t.Error("uppercase digest must fail")
	}

	broken = inv.Copy()
	broken.Manifest[dB] = []string{"v9/content/late.txt"}
	broken.Versions["v1"].State[dB] = []string{"late.txt"}
	if err := broken.Validate(); err == nil {
		t.Error("content path above head must fail")
	}
}

func TestFixityGC(t *testing.T) {
	inv := buildV1(t)
	u, _ := NewUpdater(inv, CopyState, VersionInfo{Created: t0().Add(time.Hour)})
	if _, err := u.AddFile(dB, "g.txt", "v2/content/g.txt", false); err != nil {
		t.Fatalf("AddFile - %v", err)
	}
	md5B := strings.Repeat("9", 32)
	if err := u.AddFixity(checksum.DigestMD5, md5B, "v2/content/g.txt"); err != nil {
		t.Fatalf("AddFixity - %v", err)
	}
	if err := u.RemoveFile("g.txt"); err != nil {
		t.Fatalf("RemoveFile - %v", err)
	}
	next, err := u.Build()
	if err != nil {
		t.Fatalf("Build - %v", err)
	}
	if next.Fixity != nil {
		t.Errorf("fixity of collected content must be swept: %v", next.Fixity)
	}
}

func TestPadding(t *testing.T) {
	if FormatVersionNum(3, 0) != "v3" {
		t.Errorf("FormatVersionNum(3,0) -> %s", FormatVersionNum(3, 0))
	}
	if FormatVersionNum(3, 3) != "v0003" {
		t.Errorf("FormatVersionNum(3,3) -> %s", FormatVersionNum(3, 3))
	}
	n, err := ParseVersionNum("v0003")
	if err != nil || n != 3 {
		t.Errorf("ParseVersionNum(v0003) -> %d, %v", n, err)
	}
	if _, err := ParseVersionNum("v0"); err == nil {
		t.Error("v0 must be invalid")
	}
	if _, err := ParseVersionNum("version1"); err == nil {
		t.Error("version1 must be invalid")
	}
}

func TestMapperRoundTrip(t *testing.T) {
	inv := buildV1(t)
	mapper := NewJSONMapper()
	var buf bytes.Buffer
	if err := mapper.Write(&buf, inv); err != nil {
		t.Fatalf("Write - %v", err)
	}
	got, err := mapper.Read(&buf)
	if err != nil {
		t.Fatalf("Read - %v", err)
	}
	if diff := deep.Equal(inv.Manifest, got.Manifest); diff != nil {
		t.Errorf("manifest: %v", diff)
	}
	if got.Id != inv.Id || got.Head != inv.Head || got.DigestAlgorithm != inv.DigestAlgorithm {
		t.Error("header fields lost in round trip")
	}
	if !got.Versions["v1"].Created.Equal(t0()) {
		t.Errorf("created %v", got.Versions["v1"].Created)
	}
}

func TestMapperDeterministic(t *testing.T) {
	inv := buildV1(t)
	mapper := NewJSONMapper()
	var buf1, buf2 bytes.Buffer
	if err := mapper.Write(&buf1, inv); err != nil {
		t.Fatalf("Write - %v", err)
	}
	if err := mapper.Write(&buf2, inv.Copy()); err != nil {
		t.Fatalf("Write - %v", err)
	}
	if buf1.String() != buf2.String() {
		t.Error("serialization must be deterministic")
	}
}

func TestRevisionRecovery(t *testing.T) {
	inv := buildV1(t)
	u, _ := NewUpdater(inv, CopyStateMutable, VersionInfo{Created: t0().Add(time.Hour)})
	if _, err := u.AddFile(dB, "staged.txt", u.ContentPrefix()+"/staged.txt", false); err != nil {
		t.Fatalf("AddFile - %v", err)
	}
	mutable, err := u.Build()
	if err != nil {
		t.Fatalf("Build - %v", err)
	}
	mapper := NewJSONMapper()
	var buf bytes.Buffer
	if err := mapper.Write(&buf, mutable); err != nil {
		t.Fatalf("Write - %v", err)
	}
	got, err := mapper.Read(&buf)
	if err != nil {
		t.Fatalf("Read - %v", err)
	}
	if !got.HasMutableHead() || got.RevisionNum() != 1 {
		t.Errorf("revision must be recovered from manifest, got %d", got.RevisionNum())
	}
}

func TestSidecar(t *testing.T) {
	if SidecarName(checksum.DigestSHA512) != "inventory.json.sha512" {
		t.Errorf("SidecarName -> %s", SidecarName(checksum.DigestSHA512))
	}
	content := RenderSidecar(dA)
	if content != dA+"  inventory.json\n" {
		t.Errorf("RenderSidecar -> '%s'", content)
	}
	digest, err := ParseSidecar(content)
	if err != nil || digest != dA {
		t.Errorf("ParseSidecar -> %s, %v", digest, err)
	}
	if _, err := ParseSidecar("garbage"); err == nil {
		t.Error("garbage sidecar must fail")
	}
}
