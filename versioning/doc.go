// Package versioning implements the versioning systems assets can be published with.
//
//   - MajorMinor (default): "major.minor" versions; "major" alone is a partial
//     version selecting the latest minor of that line.
//   - SimpleDate: UTC timestamps formatted as 2006-01-02T15-04-05Z.
//
// Systems are selected explicitly by tag with ByTag.
package versioning
