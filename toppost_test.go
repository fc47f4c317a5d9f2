package marley

import (
	"context"
	"testing"
)

func TestTopPosts(t *testing.T) {
	db, err := OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("OpenDatabase error: %v", err)
	}
	defer CloseDatabase(db)
	s := NewTopPostStore(db)
	ctx := context.Background()

	hits := map[string]int{"a": 1, "b": 3, "c": 2}
	for _, id := range []string{"a", "b", "c"} {
		for i := 0; i < hits[id]; i++ {
			if err := s.Hit(ctx, id); err != nil {
				t.Fatalf("Hit(%s) error: %v", id, err)
			}
		}
	}

	for id, want := range hits {
		got, err := s.Count(ctx, id)
		if err != nil || got != want {
			t.Fatalf("Count(%s)=%d, %v; want %d", id, got, err, want)
		}
	}
	if got, _ := s.Count(ctx, "none"); got != 0 {
		t.Fatalf("Count(none)=%d", got)
	}

	top, err := s.Top(ctx, 2)
	if err != nil {
		t.Fatalf("Top error: %v", err)
	}
	if len(top) != 2 || top[0].PostID != "b" || top[1].PostID != "c" {
		t.Fatalf("Top=%+v", top)
	}
}
