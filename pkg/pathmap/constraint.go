package pathmap

import (
	"strings"

	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

// ContentPathConstraintProcessor validates a content path before any bytes
// are written to it.
type ContentPathConstraintProcessor interface {
	Apply(contentPath string) error
}

type constraintFunc func(contentPath string) error

type constraintProcessor struct {
	constraints []constraintFunc
}

func (p *constraintProcessor) Apply(contentPath string) error {
	for _, c := range p.constraints {
		if err := c(contentPath); err != nil {
			return err
		}
	}
	return nil
}

// windows filename length limit, minus room for the storage root prefix
const maxPathLength = 1024
const maxSegmentLength = 255

func baseConstraints() []constraintFunc {
	return []constraintFunc{
		func(contentPath string) error {
			if contentPath == "" {
				return ocflerrors.InvalidPath("empty content path")
			}
			if len(contentPath) > maxPathLength {
				return ocflerrors.InvalidPath("content path longer than %d characters", maxPathLength)
			}
			if strings.HasPrefix(contentPath, "/") || strings.HasSuffix(contentPath, "/") {
				return ocflerrors.InvalidPath("content path '%s' must not begin or end with '/'", contentPath)
			}
			return nil
		},
		func(contentPath string) error {
			for _, part := range strings.Split(contentPath, "/") {
				switch part {
				case "":
					return ocflerrors.InvalidPath("content path '%s' contains an empty segment", contentPath)
				case ".", "..":
					return ocflerrors.InvalidPath("content path '%s' contains an illegal segment '%s'", contentPath, part)
				}
				if len(part) > maxSegmentLength {
					return ocflerrors.InvalidPath("content path segment longer than %d characters", maxSegmentLength)
				}
			}
			return nil
		},
		func(contentPath string) error {
			for i := 0; i < len(contentPath); i++ {
				if contentPath[i] < 0x20 || contentPath[i] == 0x7f {
					return ocflerrors.InvalidPath("content path '%s' contains a control character", contentPath)
				}
			}
			return nil
		},
	}
}

// DefaultConstraints applies the constraints every backend requires.
func DefaultConstraints() ContentPathConstraintProcessor {
	return &constraintProcessor{constraints: baseConstraints()}
}

var windowsReserved = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// WindowsConstraints additionally rejects characters and names that are
// illegal on Windows filesystems.
func WindowsConstraints() ContentPathConstraintProcessor {
	constraints := baseConstraints()
	constraints = append(constraints,
		func(contentPath string) error {
			if strings.ContainsAny(contentPath, "<>:\"\\|?*") {
				return ocflerrors.InvalidPath("content path '%s' contains a character illegal on windows", contentPath)
			}
			return nil
		},
		func(contentPath string) error {
			for _, part := range strings.Split(contentPath, "/") {
				if strings.HasSuffix(part, " ") || strings.HasSuffix(part, ".") {
					return ocflerrors.InvalidPath("content path segment '%s' must not end with space or period", part)
				}
				name := strings.ToLower(part)
				if idx := strings.IndexByte(name, '.'); idx >= 0 {
					name = name[:idx]
				}
				if windowsReserved[name] {
					return ocflerrors.InvalidPath("content path segment '%s' is a reserved windows name", part)
				}
			}
			return nil
		},
	)
	return &constraintProcessor{constraints: constraints}
}
