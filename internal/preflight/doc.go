// Package preflight runs the environment checks behind `magicfolder doctor`.
//
// The checks cover:
//   - Data directory writability and free disk space
//   - File descriptor limits (the watcher holds one per directory on kqueue)
//   - Embedding service reachability and model availability
//   - Agreement between the configured dimension and an existing vector table
//
//	checker := preflight.New(preflight.WithEmbedder(emb))
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
