package assetspec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ruteri/assetcache/interfaces"
	"github.com/ruteri/assetcache/versioning"
)

const (
	nameRe    = `(?:(?:[A-Z]:\\)|/)?[a-zA-Z0-9](?:[a-zA-Z0-9\-_./\\]*[a-zA-Z0-9])?`
	versionRe = `[0-9A-Za-z.\-_]+?`
)

var (
	specRe = regexp.MustCompile(
		`^(?P<name>` + nameRe + `)` +
			`(?::(?P<version>` + versionRe + `))?` +
			`(?:\[(?P<subpart>(?:/?` + nameRe + `)+)\])?$`)
	fullNameRe    = regexp.MustCompile(`^` + nameRe + `$`)
	fullSubPartRe = regexp.MustCompile(`^(?:/?` + nameRe + `)+$`)
)

// AssetSpec identifies an asset, optionally pinned to a (possibly partial)
// version and narrowed to a sub part of a directory asset.
type AssetSpec struct {
	Name    string
	Version string
	SubPart string

	Versioning interfaces.VersioningSystem
}

// Parse parses an identifier of the form name[:version][[sub_part]].
// The version is validated with vs; a nil vs selects the default system.
func Parse(s string, vs interfaces.VersioningSystem) (*AssetSpec, error) {
	m := specRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: `%s`", interfaces.ErrInvalidAssetSpec, s)
	}
	return New(
		m[specRe.SubexpIndex("name")],
		m[specRe.SubexpIndex("version")],
		m[specRe.SubexpIndex("subpart")],
		vs,
	)
}

// New builds a validated AssetSpec from its parts.
func New(name, version, subPart string, vs interfaces.VersioningSystem) (*AssetSpec, error) {
	vs = versioning.OrDefault(vs)

	if !fullNameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: `%s` can only contain [a-zA-Z0-9], [/], [\\], [.], [-] or [_] and must not start or end with a separator",
			interfaces.ErrInvalidName, name)
	}
	if hasDotSegment(name) {
		return nil, fmt.Errorf("%w: `%s` must not contain `.` or `..` path segments", interfaces.ErrInvalidName, name)
	}
	if subPart != "" && (!fullSubPartRe.MatchString(subPart) || hasDotSegment(subPart)) {
		return nil, fmt.Errorf("%w: invalid sub part `%s`", interfaces.ErrInvalidAssetSpec, subPart)
	}
	if version != "" {
		if err := vs.CheckVersionValid(version); err != nil {
			return nil, err
		}
	}

	return &AssetSpec{
		Name:       name,
		Version:    version,
		SubPart:    subPart,
		Versioning: vs,
	}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *AssetSpec {
	spec, err := Parse(s, nil)
	if err != nil {
		panic(err)
	}
	return spec
}

// IsVersionComplete reports whether the version pins exactly one asset version.
func (s *AssetSpec) IsVersionComplete() bool {
	return s.Version != "" && s.versioning().IsVersionComplete(s.Version)
}

// SortVersions sorts versions newest first with the spec's versioning system.
func (s *AssetSpec) SortVersions(versions []string) []string {
	return s.versioning().SortVersions(versions)
}

// LatestVersion returns the newest of versions matching the spec's partial
// version, e.g. the latest 1.x for version "1".
func (s *AssetSpec) LatestVersion(versions []string) (string, error) {
	vs := s.versioning()
	major := ""
	if s.Version != "" {
		major = vs.MajorOf(s.Version)
	}
	return vs.LatestVersion(versions, major)
}

// NameSegments splits the hierarchical name into path segments.
func (s *AssetSpec) NameSegments() []string {
	return splitPath(s.Name)
}

// SubPartSegments splits the sub part into path segments.
func (s *AssetSpec) SubPartSegments() []string {
	return splitPath(s.SubPart)
}

// String renders the spec back to its textual form.
func (s *AssetSpec) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	if s.Version != "" {
		b.WriteString(":")
		b.WriteString(s.Version)
	}
	if s.SubPart != "" {
		b.WriteString("[")
		b.WriteString(s.SubPart)
		b.WriteString("]")
	}
	return b.String()
}

func (s *AssetSpec) versioning() interfaces.VersioningSystem {
	return versioning.OrDefault(s.Versioning)
}

func hasDotSegment(p string) bool {
	for _, seg := range splitPath(p) {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

func splitPath(p string) []string {
	var segments []string
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}
