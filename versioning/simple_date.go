package versioning

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ruteri/assetcache/interfaces"
)

// SimpleDateLayout is the time layout of SimpleDate versions.
const SimpleDateLayout = "2006-01-02T15-04-05Z"

var simpleDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}Z$`)

// SimpleDate versions assets by their UTC push time. Every valid version is
// complete and versions sort lexicographically.
type SimpleDate struct {
	// Now overrides the clock, for tests.
	Now func() time.Time
}

var _ interfaces.VersioningSystem = SimpleDate{}

func (s SimpleDate) now() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Format(SimpleDateLayout)
}

func (SimpleDate) Name() string { return SimpleDateTag }

func (s SimpleDate) InitialVersion() string { return s.now() }

func (SimpleDate) CheckVersionValid(version string) error {
	if !simpleDateRe.MatchString(version) {
		return fmt.Errorf("%w: `%s`", interfaces.ErrInvalidVersion, version)
	}
	return nil
}

func (s SimpleDate) IsVersionComplete(version string) bool {
	return s.CheckVersionValid(version) == nil
}

func (SimpleDate) SortVersions(versions []string) []string {
	sorted := slices.Clone(versions)
	slices.Sort(sorted)
	slices.Reverse(sorted)
	return sorted
}

// FilterVersions only accepts an empty major since dates have no major line.
func (SimpleDate) FilterVersions(versions []string, major string) ([]string, error) {
	if major != "" {
		return nil, fmt.Errorf("%w: `%s`", interfaces.ErrInvalidMajorVersion, major)
	}
	return slices.Clone(versions), nil
}

func (s SimpleDate) LatestVersion(versions []string, major string) (string, error) {
	filtered, err := s.FilterVersions(versions, major)
	if err != nil {
		return "", err
	}
	valid := ValidVersions(s, filtered)
	if len(valid) == 0 {
		return "", fmt.Errorf("%w: no versions to choose from", interfaces.ErrInvalidVersion)
	}
	return s.SortVersions(valid)[0], nil
}

// IncrementVersion ignores history and returns the current time.
func (s SimpleDate) IncrementVersion(_ []string, _ interfaces.IncrementParams) (string, error) {
	return s.now(), nil
}

func (SimpleDate) MajorOf(string) string { return "" }

func (s SimpleDate) Describe(versions []string) string {
	sorted := s.SortVersions(versions)
	var b strings.Builder
	fmt.Fprintf(&b, "Found a total of %d versions\n%s", len(sorted), strings.Join(sorted, ", "))
	if len(sorted) > 0 {
		fmt.Fprintf(&b, "\nLast version is %s", sorted[0])
	}
	return b.String()
}
