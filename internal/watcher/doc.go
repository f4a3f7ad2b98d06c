// Package watcher reports changes under the storage root as debounced
// batches of FileEvent.
//
// fsnotify is used when available; otherwise the tree is polled. Paths in
// events are slash separated and relative to the watched root, so a file
// stored at <root>/<owner>/docs/a.pdf is reported as "<owner>/docs/a.pdf".
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx, root)
//
//	for batch := range w.Events() {
//	    for _, ev := range batch {
//	        // ev.Operation is OpCreate, OpModify or OpDelete
//	    }
//	}
package watcher
