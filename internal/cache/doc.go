// Package cache persists content digests on disk and serves them back while
// they are still fresh. The Store maps a source file's path, relative to the
// workspaces root, onto the same relative path under the cache root and writes
// entries with temp file + rename, so concurrent writers never expose a
// partial value. HashCache layers the freshness rule on top: an entry is only
// trusted when its modification time is not earlier than the source file's.
// Entries are never deleted; those belonging to removed source files are
// simply never read again.
package cache
