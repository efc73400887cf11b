package watch

import "context"

// Scan reports the directories a Watcher on root would watch with opts,
// and the diagnostics the walk produced, without installing kernel watches.
func Scan(ctx context.Context, root string, opts Options) ([]WatchedDirectory, []error, error) {
	opts.Notifier = NewMemoryNotifier()
	w, err := New(ctx, root, opts)
	if err != nil {
		return nil, nil, err
	}
	defer w.Stop()

	entries := w.Watched()
	diags := w.pending
	w.pending = nil
	return entries, diags, nil
}
