// Basic usage
//
//	err := watch.Watch(ctx, "/path/to/watch", watch.Options{}, func(ctx context.Context, r watch.Result) error {
//		if r.Err != nil {
//			log.Printf("watch: %v", r.Err)
//			return nil
//		}
//		fmt.Println(r.Event)
//		return nil
//	})
//
// With event filtering
//
//	opts := watch.Options{
//		Events:  []watch.Action{watch.Created, watch.Deleted},
//		Pattern: "*.go",
//	}
//
// As an iterator
//
//	w, err := watch.New(ctx, "/path/to/watch", watch.Options{MaxDepth: 8})
//	if err != nil {
//		return err
//	}
//	for ev, err := range w.All(ctx) {
//		if err != nil {
//			log.Printf("watch: %v", err)
//			continue
//		}
//		fmt.Println(ev)
//	}
//
// Execute command for each event
//
//	err := watch.WatchWithExec(ctx, "/path/to/watch", opts, "echo {event}: {}")
//
// Format output for each event
//
//	err := watch.WatchWithFormat(ctx, "/path/to/watch", opts, "{event}: {base} at {time}")

package watch
