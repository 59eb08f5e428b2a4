// Package watcher turns file system notifications under a directory tree
// into debounced batches of absolute file paths.
//
// New subdirectories are registered as they appear. Hidden directories and
// any directory in Options.IgnoreDirs are never watched. Options.Filter
// decides which files are worth reporting, typically the extractor's
// extension allow-list.
//
// Usage:
//
//	w, err := watcher.New(watcher.Options{Filter: extractor.CanHandle})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx, "/path/to/folder") }()
//
//	for batch := range w.Events() {
//	    for _, ev := range batch {
//	        // ev.Path is absolute
//	    }
//	}
package watcher
