package pathmap

import (
	"fmt"
	"strings"

	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

// LogicalPathMapper converts a logical path into the part of a content path
// below the version content directory.
type LogicalPathMapper interface {
	ToContentPathPart(logical string) (string, error)
}

// DirectLogicalPathMapper uses the logical path unchanged. Suitable for
// POSIX filesystems and object stores.
type DirectLogicalPathMapper struct{}

func NewDirectLogicalPathMapper() *DirectLogicalPathMapper {
	return &DirectLogicalPathMapper{}
}

func (m *DirectLogicalPathMapper) ToContentPathPart(logical string) (string, error) {
	return logical, nil
}

// PercentEncodingLogicalPathMapper percent-encodes every character that is
// unsafe in a Windows filename, plus '%' itself so that the mapping stays
// injective. Trailing spaces and periods of a path segment are encoded too.
type PercentEncodingLogicalPathMapper struct{}

func NewPercentEncodingLogicalPathMapper() *PercentEncodingLogicalPathMapper {
	return &PercentEncodingLogicalPathMapper{}
}

func windowsUnsafe(b byte) bool {
	if b < 0x20 || b == 0x7f {
		return true
	}
	switch b {
	case '<', '>', ':', '"', '\\', '|', '?', '*', '%':
		return true
	}
	return false
}

func (m *PercentEncodingLogicalPathMapper) ToContentPathPart(logical string) (string, error) {
	parts := strings.Split(logical, "/")
	for n, part := range parts {
		var sb strings.Builder
		for i := 0; i < len(part); i++ {
			b := part[i]
			atEnd := i == len(part)-1
			if windowsUnsafe(b) || (atEnd && (b == ' ' || b == '.')) {
				sb.WriteString(fmt.Sprintf("%%%02x", b))
			} else {
				sb.WriteByte(b)
			}
		}
		parts[n] = sb.String()
	}
	return strings.Join(parts, "/"), nil
}

// ValidateLogicalPath rejects logical paths that cannot name a file within
// a version state.
func ValidateLogicalPath(logical string) error {
	if logical == "" {
		return ocflerrors.InvalidPath("empty logical path")
	}
	if strings.HasPrefix(logical, "/") || strings.HasSuffix(logical, "/") {
		return ocflerrors.InvalidPath("logical path '%s' must not begin or end with '/'", logical)
	}
	for _, part := range strings.Split(logical, "/") {
		switch part {
		case "":
			return ocflerrors.InvalidPath("logical path '%s' contains an empty segment", logical)
		case ".", "..":
			return ocflerrors.InvalidPath("logical path '%s' contains an illegal segment '%s'", logical, part)
		}
	}
	if strings.ContainsRune(logical, 0) {
		return ocflerrors.InvalidPath("logical path '%s' contains a NUL character", logical)
	}
	return nil
}

var (
	_ LogicalPathMapper = &DirectLogicalPathMapper{}
	_ LogicalPathMapper = &PercentEncodingLogicalPathMapper{}
)
