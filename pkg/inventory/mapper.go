package inventory

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"emperror.dev/errors"
	"github.com/ocfl-archive/ocflkit/pkg/checksum"
)

// InventoryMapper serializes inventories. Write must emit deterministic
// output so that repeated serialization of the same inventory hashes
// identically.
type InventoryMapper interface {
	Read(r io.Reader) (*Inventory, error)
	Write(w io.Writer, inv *Inventory) error
}

// JSONMapper maps inventories to OCFL 1.1 inventory JSON. Map keys are
// emitted sorted, path lists sorted, so output is deterministic.
type JSONMapper struct{}

func NewJSONMapper() *JSONMapper {
	return &JSONMapper{}
}

func (m *JSONMapper) Read(r io.Reader) (*Inventory, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read inventory")
	}
	var inv = &Inventory{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(inv); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal inventory '%s'", firstBytes(data))
	}
	if inv.Manifest == nil {
		inv.Manifest = map[string][]string{}
	}
	if inv.Versions == nil {
		inv.Versions = map[string]*Version{}
	}
	inv.recoverRevision()
	return inv, nil
}

func (m *JSONMapper) Write(w io.Writer, inv *Inventory) error {
	inv.normalize()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(inv); err != nil {
		return errors.Wrapf(err, "cannot marshal inventory of '%s'", inv.Id)
	}
	return nil
}

func firstBytes(data []byte) string {
	if len(data) > 512 {
		return string(data[:512]) + "..."
	}
	return string(data)
}

var revisionRegexp = regexp.MustCompile(`^r([1-9][0-9]*)$`)

// recoverRevision restores the mutable HEAD revision marker by scanning
// the manifest for content paths below the mutable HEAD directory.
func (i *Inventory) recoverRevision() {
	maxRev := 0
	for _, paths := range i.Manifest {
		for _, path := range paths {
			rest, ok := strings.CutPrefix(path, MutableHeadDir+"/"+i.ContentDir()+"/")
			if !ok {
				continue
			}
			revision, _, _ := strings.Cut(rest, "/")
			matches := revisionRegexp.FindStringSubmatch(revision)
			if matches == nil {
				continue
			}
			var rev int
			for _, c := range matches[1] {
				rev = rev*10 + int(c-'0')
			}
			if rev > maxRev {
				maxRev = rev
			}
		}
	}
	i.revision = maxRev
}

// SidecarName returns the name of the inventory digest sidecar file.
func SidecarName(digestAlg checksum.DigestAlgorithm) string {
	return "inventory.json." + string(digestAlg)
}

// RenderSidecar renders the sidecar content for an inventory digest.
func RenderSidecar(digest string) string {
	return digest + "  inventory.json\n"
}

var sidecarRegexp = regexp.MustCompile(`^([0-9a-fA-F]+)\s+inventory\.json\s*$`)

// ParseSidecar extracts the digest from sidecar file content.
func ParseSidecar(content string) (string, error) {
	matches := sidecarRegexp.FindStringSubmatch(strings.TrimRight(content, "\n"))
	if matches == nil {
		return "", errors.Errorf("invalid inventory sidecar '%s'", strings.TrimSpace(content))
	}
	return strings.ToLower(matches[1]), nil
}

var (
	_ InventoryMapper = &JSONMapper{}
)
