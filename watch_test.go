package marley

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	post := filepath.Join(dir, "001-post")
	if err := os.Mkdir(post, 0o755); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, func() { changed <- struct{}{} }, nil)
	}()

	// keep touching the article until the watcher is up and reports it
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for i := 0; ; i++ {
		select {
		case <-changed:
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch error: %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(filepath.Join(post, "a.txt"), []byte("# Title "+strconv.Itoa(i)), 0o644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			cancel()
			t.Fatalf("no change reported")
		}
	}
}

func TestWatchMissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "none"), func() {}, nil)
	if err == nil {
		t.Fatalf("Watch on a missing directory should fail")
	}
}
