package interfaces

import (
	"time"
)

// AssetMetadata is stored next to every pushed asset version.
type AssetMetadata struct {
	// PushDate is when the version was pushed, in UTC.
	PushDate time.Time `json:"push_date"`
	// IsDirectory is true for multi-part assets.
	IsDirectory bool `json:"is_directory"`
	// Contents lists the relative, slash separated paths of every file of a
	// directory asset, sorted.
	Contents []string `json:"contents,omitempty"`
}

// VersionsIndex is the remote list of all versions of one asset.
// It is append-only and not kept sorted; readers sort it.
type VersionsIndex struct {
	Versions []string `json:"versions"`
}

// Contains reports whether version is listed in the index.
func (idx VersionsIndex) Contains(version string) bool {
	for _, v := range idx.Versions {
		if v == version {
			return true
		}
	}
	return false
}
