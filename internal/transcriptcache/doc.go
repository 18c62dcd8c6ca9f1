// Package transcriptcache stores recognition results keyed by a file
// fingerprint so repeated conversions of an unchanged file skip the engine.
//
// A fingerprint is derived from the absolute path and the modification time,
// not from file content. Two different files that share a path and mtime map
// to the same entry; callers accept that for the lifetime of one process since
// the cache is wiped on shutdown. Entries are never evicted while the process
// runs.
package transcriptcache
