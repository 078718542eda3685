// Package manager resolves asset specs to local files, fetching them from
// remote storage into a shared assets directory.
//
// Local layout:
//
//	{assets_dir}/{name}/{version}           file, or directory of parts
//	{assets_dir}/{name}/.{version}.SUCCESS  marker of a complete file asset
//	{assets_dir}/{name}/{version}/.SUCCESS  marker of a complete directory asset
//	{assets_dir}/.cache/{name}.lock         per asset download lock
//
// Cached versions are never evicted. A version whose marker is missing is
// downloaded again on the next fetch.
package manager
