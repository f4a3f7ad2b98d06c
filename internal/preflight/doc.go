// Package preflight validates the host before the engine starts: the
// storage root is a readable directory, the data directory is writable
// with enough free space, the descriptor limit can carry the storage
// watcher, and no other process holds the index.
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
