// Package watcher reads a server's captured console log: the last lines of
// it, or everything appended from a given offset as it is written.
//
// Following is event driven through fsnotify with a slow poll as a backstop,
// and a log that shrinks (truncated or rotated) is read again from the start.
//
// Example usage:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	lines, _ := watcher.Tail(logPath, 20)
//	for _, l := range lines {
//		fmt.Println(l)
//	}
//	if err := watcher.Follow(ctx, logPath, -1, os.Stdout); err != nil {
//		log.Fatal(err)
//	}
package watcher
