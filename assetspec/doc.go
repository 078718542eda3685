// Package assetspec parses and validates asset identifiers.
//
// An identifier reads name[:version][[sub_part]], for example
//
//	models/bert:1.2[weights/pytorch.bin]
//
// Names and sub parts are hierarchical, separated by "/" (or "\" on Windows
// paths). The version may be partial, in which case it is resolved against
// the published versions by the versioning system the spec was parsed with.
package assetspec
