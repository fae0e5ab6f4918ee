package suma

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Level is one technical level candidate within a release family.
type Level struct {
	// Name is the tool's form, e.g. "7100-03".
	Name string
	// Display is the dotted form, e.g. "7.1.3".
	Display string
}

// LevelEnumerator returns the candidate technical level at index within a
// release family. The miner tries increasing indices until the failure
// streak cutoff.
type LevelEnumerator interface {
	TechnicalLevel(family string, index int) (Level, error)
}

// DefaultLevels names levels the AIX way: family "7.1" at index 3 is
// "7100-03".
type DefaultLevels struct{}

// TechnicalLevel implements LevelEnumerator.
func (DefaultLevels) TechnicalLevel(family string, index int) (Level, error) {
	v, err := ParseFamily(family)
	if err != nil {
		return Level{}, err
	}
	if index < 0 || index > 99 {
		return Level{}, fmt.Errorf("technical level index %d out of range", index)
	}
	return Level{
		Name:    fmt.Sprintf("%d%d00-%02d", v.Major(), v.Minor(), index),
		Display: fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), index),
	}, nil
}

// ParseFamily parses a release family such as "7.2". Only single-digit
// major and minor numbers are valid, with no patch or pre-release part.
func ParseFamily(family string) (*semver.Version, error) {
	v, err := semver.NewVersion(family)
	if err != nil {
		return nil, fmt.Errorf("invalid release family %q: %w", family, err)
	}
	if v.Patch() != 0 || v.Prerelease() != "" || v.Metadata() != "" {
		return nil, fmt.Errorf("invalid release family %q: expected <major>.<minor>", family)
	}
	if v.Major() > 9 || v.Minor() > 9 {
		return nil, fmt.Errorf("invalid release family %q: major and minor must be single digits", family)
	}
	return v, nil
}
