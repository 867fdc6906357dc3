package inventory

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/ocfl-archive/ocflkit/pkg/checksum"
)

const InventoryType1_1 = "https://ocfl.io/1.1/spec/#inventory"
const DefaultContentDirectory = "content"

// MutableHeadDir is where the mutable HEAD extension keeps its overlay,
// relative to the object root.
const MutableHeadExtensionName = "0005-mutable-head"
const MutableHeadDir = "extensions/0005-mutable-head-0.1/head"

// MutableHeadRevisionsDir holds one marker file per claimed revision so
// that the current revision number survives revisions without content.
const MutableHeadRevisionsDir = "extensions/0005-mutable-head-0.1/revisions"

type User struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

type OCFLTime struct {
	time.Time
}

func (t OCFLTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(time.RFC3339) + `"`), nil
}

func (t *OCFLTime) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	tt, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return errors.Wrapf(err, "cannot parse time '%s'", str)
	}
	t.Time = tt
	return nil
}

// Version is one version record. State is inverse-indexed: a content
// digest maps to the logical paths bound to it.
type Version struct {
	Created OCFLTime            `json:"created"`
	Message string              `json:"message,omitempty"`
	User    *User               `json:"user,omitempty"`
	State   map[string][]string `json:"state"`
}

// DigestOf returns the state digest a logical path is bound to, or "".
func (v *Version) DigestOf(logicalPath string) string {
	for digest, paths := range v.State {
		for _, path := range paths {
			if path == logicalPath {
				return digest
			}
		}
	}
	return ""
}

// LogicalPaths returns all logical paths of the version state, sorted.
func (v *Version) LogicalPaths() []string {
	var result []string
	for _, paths := range v.State {
		result = append(result, paths...)
	}
	sort.Strings(result)
	return result
}

// Inventory is the complete in-memory state of one object.
type Inventory struct {
	Id               string                                           `json:"id"`
	Type             string                                           `json:"type"`
	DigestAlgorithm  checksum.DigestAlgorithm                         `json:"digestAlgorithm"`
	Head             string                                           `json:"head"`
	ContentDirectory string                                           `json:"contentDirectory,omitempty"`
	Fixity           map[checksum.DigestAlgorithm]map[string][]string `json:"fixity,omitempty"`
	Manifest         map[string][]string                              `json:"manifest"`
	Versions         map[string]*Version                              `json:"versions"`

	// revision > 0 marks an inventory whose head is a mutable HEAD at
	// revision r{revision}. Not serialized; recovered from the manifest
	// content paths on load.
	revision int
}

func NewInventory(id string, digestAlg checksum.DigestAlgorithm, contentDir string) (*Inventory, error) {
	if id == "" {
		return nil, errors.New("empty object id")
	}
	if !checksum.HashExists(digestAlg) {
		return nil, errors.Errorf("unknown digest algorithm '%s'", digestAlg)
	}
	if contentDir == "" {
		contentDir = DefaultContentDirectory
	}
	return &Inventory{
		Id:               id,
		Type:             InventoryType1_1,
		DigestAlgorithm:  digestAlg,
		ContentDirectory: contentDir,
		Manifest:         map[string][]string{},
		Versions:         map[string]*Version{},
	}, nil
}

var versionRegexp = regexp.MustCompile(`^v0*[1-9][0-9]*$`)

// ParseVersionNum parses "vN" or zero-padded "v000N" into its number.
func ParseVersionNum(version string) (int, error) {
	if !versionRegexp.MatchString(version) {
		return 0, errors.Errorf("invalid version '%s'", version)
	}
	n, err := strconv.Atoi(strings.TrimLeft(version[1:], "0"))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid version '%s'", version)
	}
	return n, nil
}

// paddingOf returns the zero-padding width of a version name, 0 for
// unpadded names.
func paddingOf(version string) int {
	if len(version) > 1 && version[1] == '0' {
		return len(version) - 2
	}
	return 0
}

// FormatVersionNum renders a version number with the given padding width.
func FormatVersionNum(num, padding int) string {
	if padding <= 0 {
		return fmt.Sprintf("v%d", num)
	}
	return fmt.Sprintf(fmt.Sprintf("v0%%0%dd", padding), num)
}

// Padding returns the on-storage version name padding of the object, fixed
// for the lifetime of the object at the width of v1.
func (i *Inventory) Padding() int {
	for version := range i.Versions {
		if n, err := ParseVersionNum(version); err == nil && n == 1 {
			return paddingOf(version)
		}
	}
	return 0
}

// HeadNum returns the numeric head version, 0 for an inventory without
// versions.
func (i *Inventory) HeadNum() int {
	if i.Head == "" {
		return 0
	}
	n, err := ParseVersionNum(i.Head)
	if err != nil {
		return 0
	}
	return n
}

// VersionNames returns the version names ordered ascending.
func (i *Inventory) VersionNames() []string {
	type vn struct {
		name string
		num  int
	}
	var vns []vn
	for version := range i.Versions {
		n, err := ParseVersionNum(version)
		if err != nil {
			continue
		}
		vns = append(vns, vn{version, n})
	}
	sort.Slice(vns, func(a, b int) bool { return vns[a].num < vns[b].num })
	result := make([]string, len(vns))
	for n, v := range vns {
		result[n] = v.name
	}
	return result
}

func (i *Inventory) HeadVersion() *Version {
	return i.Versions[i.Head]
}

func (i *Inventory) GetVersion(version string) (*Version, error) {
	v, ok := i.Versions[version]
	if !ok {
		return nil, errors.Errorf("object '%s' has no version '%s'", i.Id, version)
	}
	return v, nil
}

// ContentPath returns the first manifest content path of a digest, or "".
func (i *Inventory) ContentPath(digest string) string {
	paths := i.Manifest[strings.ToLower(digest)]
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func (i *Inventory) HasDigest(digest string) bool {
	_, ok := i.Manifest[strings.ToLower(digest)]
	return ok
}

// HasMutableHead reports whether the inventory describes a mutable HEAD.
func (i *Inventory) HasMutableHead() bool {
	return i.revision > 0
}

// RevisionNum returns the current mutable HEAD revision, 0 if none.
func (i *Inventory) RevisionNum() int {
	return i.revision
}

func (i *Inventory) SetRevisionNum(revision int) {
	i.revision = revision
}

// NextRevisionNum returns the revision number the next stage call uses.
func (i *Inventory) NextRevisionNum() int {
	return i.revision + 1
}

// ContentDir returns the effective content directory name.
func (i *Inventory) ContentDir() string {
	if i.ContentDirectory == "" {
		return DefaultContentDirectory
	}
	return i.ContentDirectory
}

// Copy returns a deep copy. The revision marker is carried over.
func (i *Inventory) Copy() *Inventory {
	dup := &Inventory{
		Id:               i.Id,
		Type:             i.Type,
		DigestAlgorithm:  i.DigestAlgorithm,
		Head:             i.Head,
		ContentDirectory: i.ContentDirectory,
		Manifest:         copyMapStringSlice(i.Manifest),
		Versions:         map[string]*Version{},
		revision:         i.revision,
	}
	if i.Fixity != nil {
		dup.Fixity = map[checksum.DigestAlgorithm]map[string][]string{}
		for alg, entries := range i.Fixity {
			dup.Fixity[alg] = copyMapStringSlice(entries)
		}
	}
	for name, version := range i.Versions {
		dup.Versions[name] = &Version{
			Created: version.Created,
			Message: version.Message,
			State:   copyMapStringSlice(version.State),
		}
		if version.User != nil {
			u := *version.User
			dup.Versions[name].User = &u
		}
	}
	return dup
}

func copyMapStringSlice(src map[string][]string) map[string][]string {
	dst := make(map[string][]string, len(src))
	for key, val := range src {
		dst[key] = make([]string, len(val))
		copy(dst[key], val)
	}
	return dst
}

// normalize sorts all path slices so that serialization is reproducible.
func (i *Inventory) normalize() {
	for _, paths := range i.Manifest {
		sort.Strings(paths)
	}
	for _, version := range i.Versions {
		for _, paths := range version.State {
			sort.Strings(paths)
		}
	}
	for _, entries := range i.Fixity {
		for _, paths := range entries {
			sort.Strings(paths)
		}
	}
}
