package versioning

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/ruteri/assetcache/interfaces"
)

var (
	majorMinorRe = regexp.MustCompile(`^([0-9]+)(\.([0-9]+))?$`)
	majorRe      = regexp.MustCompile(`^[0-9]+$`)
)

// MajorMinor versions assets as "major.minor", both non-negative integers.
// A version with only a major part is a valid but partial version that
// selects the latest minor of that major line.
type MajorMinor struct{}

var _ interfaces.VersioningSystem = MajorMinor{}

type majorMinorKey struct {
	major, minor int
	hasMinor     bool
}

func parseMajorMinor(version string) (majorMinorKey, error) {
	m := majorMinorRe.FindStringSubmatch(version)
	if m == nil {
		return majorMinorKey{}, fmt.Errorf("%w: `%s` is not of the form major[.minor]", interfaces.ErrInvalidVersion, version)
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return majorMinorKey{}, fmt.Errorf("%w: `%s`: %v", interfaces.ErrInvalidVersion, version, err)
	}
	key := majorMinorKey{major: major}
	if m[3] != "" {
		key.minor, err = strconv.Atoi(m[3])
		if err != nil {
			return majorMinorKey{}, fmt.Errorf("%w: `%s`: %v", interfaces.ErrInvalidVersion, version, err)
		}
		key.hasMinor = true
	}
	return key, nil
}

func (MajorMinor) Name() string { return MajorMinorTag }

func (MajorMinor) InitialVersion() string { return "0.0" }

func (MajorMinor) CheckVersionValid(version string) error {
	_, err := parseMajorMinor(version)
	return err
}

func (MajorMinor) IsVersionComplete(version string) bool {
	key, err := parseMajorMinor(version)
	return err == nil && key.hasMinor
}

// SortVersions orders by (major, minor) descending, a missing minor counting
// as 0. Invalid entries are kept, after all valid ones, in their input order.
func (MajorMinor) SortVersions(versions []string) []string {
	sorted := slices.Clone(versions)
	slices.SortStableFunc(sorted, func(a, b string) int {
		ka, errA := parseMajorMinor(a)
		kb, errB := parseMajorMinor(b)
		switch {
		case errA != nil && errB != nil:
			return 0
		case errA != nil:
			return 1
		case errB != nil:
			return -1
		}
		if c := cmp.Compare(kb.major, ka.major); c != 0 {
			return c
		}
		return cmp.Compare(kb.minor, ka.minor)
	})
	return sorted
}

// FilterVersions returns the versions whose major equals major, numerically.
func (MajorMinor) FilterVersions(versions []string, major string) ([]string, error) {
	if !majorRe.MatchString(major) {
		return nil, fmt.Errorf("%w: `%s`", interfaces.ErrInvalidMajorVersion, major)
	}
	want, err := strconv.Atoi(major)
	if err != nil {
		return nil, fmt.Errorf("%w: `%s`", interfaces.ErrInvalidMajorVersion, major)
	}

	var filtered []string
	for _, v := range versions {
		key, err := parseMajorMinor(v)
		if err == nil && key.major == want {
			filtered = append(filtered, v)
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("%w: `%s`", interfaces.ErrMajorVersionDoesNotExist, major)
	}
	return filtered, nil
}

func (mm MajorMinor) LatestVersion(versions []string, major string) (string, error) {
	if major != "" {
		filtered, err := mm.FilterVersions(versions, major)
		if err != nil {
			return "", err
		}
		versions = filtered
	}
	valid := ValidVersions(mm, versions)
	if len(valid) == 0 {
		return "", fmt.Errorf("%w: no versions to choose from", interfaces.ErrInvalidVersion)
	}
	return mm.SortVersions(valid)[0], nil
}

// IncrementVersion bumps the minor of the latest version (of params.Major if
// set), or starts a new major line at minor 0 when params.BumpMajor is set.
// With no existing versions it returns the initial version.
func (mm MajorMinor) IncrementVersion(versions []string, params interfaces.IncrementParams) (string, error) {
	if len(versions) == 0 && params.Major == "" {
		return mm.InitialVersion(), nil
	}

	major := params.Major
	if params.BumpMajor {
		major = ""
	}
	latest, err := mm.LatestVersion(versions, major)
	if err != nil {
		return "", err
	}
	key, err := parseMajorMinor(latest)
	if err != nil {
		return "", err
	}

	if params.BumpMajor {
		return fmt.Sprintf("%d.0", key.major+1), nil
	}
	return fmt.Sprintf("%d.%d", key.major, key.minor+1), nil
}

func (MajorMinor) MajorOf(version string) string {
	key, err := parseMajorMinor(version)
	if err != nil {
		return ""
	}
	return strconv.Itoa(key.major)
}

func (mm MajorMinor) Describe(versions []string) string {
	byMajor := map[int][]string{}
	for _, v := range mm.SortVersions(ValidVersions(mm, versions)) {
		key, _ := parseMajorMinor(v)
		byMajor[key.major] = append(byMajor[key.major], v)
	}
	majors := make([]int, 0, len(byMajor))
	for major := range byMajor {
		majors = append(majors, major)
	}
	slices.Sort(majors)

	var b strings.Builder
	fmt.Fprintf(&b, "Found a total of %d versions (%d major versions)", len(versions), len(majors))
	for _, major := range majors {
		fmt.Fprintf(&b, "\n - major `%d` = %s", major, strings.Join(byMajor[major], ", "))
	}
	return b.String()
}
