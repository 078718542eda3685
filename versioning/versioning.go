package versioning

import (
	"fmt"

	"github.com/ruteri/assetcache/interfaces"
)

const (
	// MajorMinorTag selects the MajorMinor versioning system.
	MajorMinorTag = "major_minor"
	// SimpleDateTag selects the SimpleDate versioning system.
	SimpleDateTag = "simple_date"
)

// ByTag returns the versioning system registered under tag.
// An empty tag selects the default MajorMinor system.
func ByTag(tag string) (interfaces.VersioningSystem, error) {
	switch tag {
	case "", MajorMinorTag:
		return MajorMinor{}, nil
	case SimpleDateTag:
		return SimpleDate{}, nil
	default:
		return nil, fmt.Errorf("unknown versioning system: %s", tag)
	}
}

// Default returns the versioning system used when none is configured.
func Default() interfaces.VersioningSystem {
	return MajorMinor{}
}

// OrDefault returns vs, or the default system if vs is nil.
func OrDefault(vs interfaces.VersioningSystem) interfaces.VersioningSystem {
	if vs == nil {
		return Default()
	}
	return vs
}

// ValidVersions returns the entries of versions that are valid for vs,
// preserving their order.
func ValidVersions(vs interfaces.VersioningSystem, versions []string) []string {
	valid := make([]string, 0, len(versions))
	for _, v := range versions {
		if vs.CheckVersionValid(v) == nil {
			valid = append(valid, v)
		}
	}
	return valid
}
