// Package remote publishes and retrieves versioned assets on top of a
// storage driver.
//
// A StorageProvider owns the remote naming scheme. Creating an asset pushes
// its first version and writes a versions index; updates push further
// versions and rewrite the index. Directory assets are uploaded part by part
// and their metadata lists every part, so downloads never need to list the
// bucket.
package remote
