package marley

import (
	"container/list"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
)

// Store is a key-value cache backend. Get returns ErrCacheMiss for an
// absent key; any other error means the backend is unavailable.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// DefaultMemoryEntries bounds a MemoryStore created with a non-positive size.
const DefaultMemoryEntries = 1024

// MemoryStore is a process-local Store holding at most size entries; the
// least recently used entry is evicted first.
type MemoryStore struct {
	mu    sync.Mutex
	size  int
	order *list.List
	data  map[string]*list.Element
}

type memoryEntry struct {
	key   string
	value []byte
}

// NewMemoryStore creates an empty MemoryStore bounded to size entries.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	return &MemoryStore{size: size, order: list.New(), data: make(map[string]*list.Element)}
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	m.order.MoveToFront(el)
	return el.Value.(*memoryEntry).value, nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	value = append([]byte(nil), value...)
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.data[key]; ok {
		el.Value.(*memoryEntry).value = value
		m.order.MoveToFront(el)
		return nil
	}
	m.data[key] = m.order.PushFront(&memoryEntry{key: key, value: value})
	for m.order.Len() > m.size {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.data, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

// Len returns the number of cached keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Flush drops every key.
func (m *MemoryStore) Flush() {
	m.mu.Lock()
	m.order.Init()
	m.data = make(map[string]*list.Element)
	m.mu.Unlock()
}

// memcache limits keys to 250 bytes without spaces or control characters
const maxMemcacheKey = 250

// MemcacheStore is a Store on memcached servers. Keys are prefixed with a
// namespace.
type MemcacheStore struct {
	client    *memcache.Client
	namespace string
}

// NewMemcacheStore connects to a comma separated list of servers.
func NewMemcacheStore(servers, namespace string) *MemcacheStore {
	var addrs []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			addrs = append(addrs, s)
		}
	}
	client := memcache.New(addrs...)
	client.Timeout = 500 * time.Millisecond
	return &MemcacheStore{client: client, namespace: namespace}
}

func (m *MemcacheStore) key(k string) string {
	full := m.namespace + k
	if len(full) <= maxMemcacheKey && !strings.ContainsAny(full, " \t\r\n") {
		return full
	}
	sum := sha1.Sum([]byte(k))
	return m.namespace + hex.EncodeToString(sum[:])
}

func (m *MemcacheStore) Get(key string) ([]byte, error) {
	it, err := m.client.Get(m.key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrapf(err, "memcache get %s", key)
	}
	return it.Value, nil
}

func (m *MemcacheStore) Set(key string, value []byte) error {
	err := m.client.Set(&memcache.Item{Key: m.key(key), Value: value})
	return errors.Wrapf(err, "memcache set %s", key)
}

// Cached returns the value cached under key, computing and storing it with
// fn on a miss. A failing store only costs the recomputation; a failed Set is
// logged at warn level on logger, or slog.Default() when nil.
func Cached(store Store, key string, logger *slog.Logger, fn func() ([]byte, error)) ([]byte, error) {
	if store == nil {
		return fn()
	}
	if v, err := store.Get(key); err == nil {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return nil, err
	}
	if err := store.Set(key, v); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("cache set failed", "key", key, "err", err)
	}
	return v, nil
}

type scoreCache struct {
	store Store
}

// NewScoreCache stores similarity scores in a Store as decimal text.
func NewScoreCache(store Store) ScoreCache {
	return scoreCache{store: store}
}

func (c scoreCache) GetScore(key string) (float64, bool, error) {
	b, err := c.store.Get(key)
	if errors.Is(err, ErrCacheMiss) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "decode score %s", key)
	}
	return v, true, nil
}

func (c scoreCache) SetScore(key string, v float64) error {
	return c.store.Set(key, []byte(strconv.FormatFloat(v, 'g', -1, 64)))
}
