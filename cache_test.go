package marley

import (
	"bytes"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"testing"
)

type brokenStore struct{}

func (brokenStore) Get(string) ([]byte, error) { return nil, errors.New("down") }
func (brokenStore) Set(string, []byte) error   { return errors.New("down") }

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore(0)
	if _, err := m.Get("k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get on empty store err=%v; want ErrCacheMiss", err)
	}
	buf := []byte("v1")
	if err := m.Set("k", buf); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	buf[0] = 'x'
	got, err := m.Get("k")
	if err != nil || string(got) != "v1" {
		t.Fatalf("Get=%q, %v; want v1", got, err)
	}
	if m.Len() != 1 {
		t.Fatalf("Len=%d; want 1", m.Len())
	}
	m.Flush()
	if m.Len() != 0 {
		t.Fatalf("Len after Flush=%d; want 0", m.Len())
	}
}

func TestCached(t *testing.T) {
	m := NewMemoryStore(0)
	calls := 0
	fn := func() ([]byte, error) {
		calls++
		return []byte("page"), nil
	}
	for i := 0; i < 3; i++ {
		got, err := Cached(m, "page", nil, fn)
		if err != nil || string(got) != "page" {
			t.Fatalf("Cached=%q, %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("fn called %d times; want 1", calls)
	}

	calls = 0
	for i := 0; i < 2; i++ {
		if _, err := Cached(brokenStore{}, "page", nil, fn); err != nil {
			t.Fatalf("Cached on broken store error: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("fn called %d times on broken store; want 2", calls)
	}

	_, err := Cached(m, "err", nil, func() ([]byte, error) { return nil, errors.New("boom") })
	if err == nil {
		t.Fatalf("Cached should return fn errors")
	}
	if _, err := m.Get("err"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("failed computation should not be cached")
	}
}

func TestMemoryStoreEvicts(t *testing.T) {
	m := NewMemoryStore(3)
	for _, k := range []string{"a", "b", "c"} {
		if err := m.Set(k, []byte(k)); err != nil {
			t.Fatalf("Set error: %v", err)
		}
	}
	// a becomes the most recently used, b the oldest
	if _, err := m.Get("a"); err != nil {
		t.Fatalf("Get(a) error: %v", err)
	}
	if err := m.Set("d", []byte("d")); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, err := m.Get("b"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get(b) err=%v; want eviction", err)
	}
	for _, k := range []string{"a", "c", "d"} {
		if got, err := m.Get(k); err != nil || string(got) != k {
			t.Fatalf("Get(%s)=%q, %v", k, got, err)
		}
	}

	for i := 0; i < 1000; i++ {
		if err := m.Set("page-"+strconv.Itoa(i), []byte("x")); err != nil {
			t.Fatalf("Set error: %v", err)
		}
	}
	if m.Len() != 3 {
		t.Fatalf("Len=%d; want 3", m.Len())
	}

	if got := NewMemoryStore(-1); got.size != DefaultMemoryEntries {
		t.Fatalf("size=%d; want %d", got.size, DefaultMemoryEntries)
	}
}

func TestCachedLogsSetFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	got, err := Cached(brokenStore{}, "page-key", logger, func() ([]byte, error) { return []byte("page"), nil })
	if err != nil || string(got) != "page" {
		t.Fatalf("Cached=%q, %v", got, err)
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "cache set failed") || !strings.Contains(out, "page-key") {
		t.Fatalf("log output=%q", out)
	}

	buf.Reset()
	if _, err := Cached(NewMemoryStore(0), "page-key", logger, func() ([]byte, error) { return []byte("page"), nil }); err != nil {
		t.Fatalf("Cached error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected log output=%q", buf.String())
	}
}

func TestScoreCache(t *testing.T) {
	c := NewScoreCache(NewMemoryStore(0))
	if _, ok, err := c.GetScore("k"); ok || err != nil {
		t.Fatalf("GetScore on miss ok=%v err=%v", ok, err)
	}
	if err := c.SetScore("k", 0.2886751345948129); err != nil {
		t.Fatalf("SetScore error: %v", err)
	}
	v, ok, err := c.GetScore("k")
	if err != nil || !ok || v != 0.2886751345948129 {
		t.Fatalf("GetScore=%v, %v, %v", v, ok, err)
	}

	if _, _, err := NewScoreCache(brokenStore{}).GetScore("k"); err == nil {
		t.Fatalf("GetScore on broken store should fail")
	}
}

func TestMemcacheKey(t *testing.T) {
	m := NewMemcacheStore("127.0.0.1:11211, ", "Marley/")
	if got := m.key("distance-title-a-b"); got != "Marley/distance-title-a-b" {
		t.Fatalf("key=%q", got)
	}
	long := m.key(strings.Repeat("x", 300))
	if len(long) != len("Marley/")+40 || !strings.HasPrefix(long, "Marley/") {
		t.Fatalf("long key=%q; want namespace plus sha1", long)
	}
	if spaced := m.key("page/a b"); strings.Contains(spaced, " ") {
		t.Fatalf("key with space=%q", spaced)
	}
}
