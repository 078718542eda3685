package interfaces

// IncrementParams carries the options a versioning system may use when
// deriving the next version of an asset.
type IncrementParams struct {
	// BumpMajor starts a new major version line.
	BumpMajor bool
	// Major restricts the increment to an existing major version line.
	Major string
}

// VersioningSystem defines which version strings are valid for an asset,
// how they are ordered and how new versions are derived.
type VersioningSystem interface {
	// Name returns the tag the system is selected by.
	Name() string

	// InitialVersion returns the version of a freshly created asset.
	InitialVersion() string

	// CheckVersionValid returns ErrInvalidVersion (or an error wrapping it)
	// if version is not a valid, possibly partial, version.
	CheckVersionValid(version string) error

	// IsVersionComplete reports whether version pins exactly one asset version.
	IsVersionComplete(version string) bool

	// SortVersions returns a copy of versions sorted newest first.
	SortVersions(versions []string) []string

	// FilterVersions returns the versions belonging to the given major line.
	FilterVersions(versions []string, major string) ([]string, error)

	// LatestVersion returns the newest version, restricted to major if non-empty.
	LatestVersion(versions []string, major string) (string, error)

	// IncrementVersion derives the version following versions.
	IncrementVersion(versions []string, params IncrementParams) (string, error)

	// MajorOf returns the major line a partial version selects, or "" if the
	// system has no notion of major versions.
	MajorOf(version string) string

	// Describe summarizes versions for display before an update.
	Describe(versions []string) string
}
