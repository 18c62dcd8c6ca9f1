// Package preflight runs environment checks before conversions start.
//
// Checks cover directory access, free space on the cache volume, the
// external binaries each configured engine needs, and reachability of the
// cloud speech API. The `voxbridge check` command renders the results; batch
// runs use the binary checks to fail fast.
package preflight
