// Package rewardctx implements C2 (the reward-context disk+memory cache) and
// C3 (the context engine that computes, mixes, and caches reward contexts).
// The cache mirrors original_source/motivo/utils/cache_utils.py's
// RewardContextCache: a bounded in-memory LRU backed by a disk directory of
// serialized contexts, keyed by a canonical fingerprint of the reward spec.
package rewardctx

import (
	"container/list"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/motivo-run/motivo-server/internal/logger"
	"github.com/motivo-run/motivo-server/internal/protocol"
)

// MinCacheCapacity is the floor spec.md §4.2 requires regardless of the
// configured value, so a misconfigured tiny cache can't thrash every request
// through disk.
const MinCacheCapacity = 100

// Cache is the two-tier (memory LRU + disk) reward-context store. The zero
// value is not usable; use NewCache.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List // front = most recently used
	items    map[string]*list.Element
	dir      string
}

type cacheEntry struct {
	key     string
	context []float32
}

// NewCache returns a Cache rooted at dir, clamping capacity to at least
// MinCacheCapacity. dir is created if it does not already exist.
func NewCache(dir string, capacity int) (*Cache, error) {
	if capacity < MinCacheCapacity {
		capacity = MinCacheCapacity
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rewardctx: creating cache dir: %w", err)
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		dir:      dir,
	}, nil
}

// Fingerprint produces the cache key for a reward specification: primitives
// sorted by (name, canonical-JSON-of-params-sans-id), combination type, and
// weights, matching original_source's get_cache_key exactly.
func Fingerprint(spec protocol.RewardSpec) (string, error) {
	type normalizedPrimitive struct {
		Name   string         `json:"name"`
		Params map[string]any `json:"params"`
	}

	normalized := make([]normalizedPrimitive, len(spec.Rewards))
	sortKeys := make([]string, len(spec.Rewards))
	for i, p := range spec.Rewards {
		paramsJSON, err := canonicalJSON(p.Params)
		if err != nil {
			return "", fmt.Errorf("rewardctx: fingerprinting primitive %q: %w", p.Name, err)
		}
		normalized[i] = normalizedPrimitive{Name: p.Name, Params: p.Params}
		sortKeys[i] = p.Name + "\x00" + paramsJSON
	}

	order := make([]int, len(spec.Rewards))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return sortKeys[order[a]] < sortKeys[order[b]] })

	sortedPrimitives := make([]normalizedPrimitive, len(order))
	for i, idx := range order {
		sortedPrimitives[i] = normalized[idx]
	}

	combinationType := spec.CombinationType
	if combinationType == "" {
		combinationType = "multiplicative"
	}
	weights := spec.Weights
	if len(weights) == 0 {
		weights = make([]float64, len(spec.Rewards))
		for i := range weights {
			weights[i] = 1.0
		}
	}

	normalizedConfig := map[string]any{
		"rewards":         sortedPrimitives,
		"combinationType": combinationType,
		"weights":         weights,
	}
	payload, err := canonicalJSON(normalizedConfig)
	if err != nil {
		return "", fmt.Errorf("rewardctx: fingerprinting spec: %w", err)
	}
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON marshals v with map keys sorted, matching Python's
// json.dumps(..., sort_keys=True). encoding/json already sorts map[string]X
// keys, so this is a thin wrapper kept for documentation and a single place
// to change strategy if a future field needs special handling.
func canonicalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Get returns the cached context for fingerprint, checking memory first and
// promoting a disk hit back into memory. The second return is false on a
// full miss.
func (c *Cache) Get(fingerprint string) ([]float32, bool) {
	c.mu.Lock()
	if el, ok := c.items[fingerprint]; ok {
		c.ll.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		ctx := append([]float32(nil), entry.context...)
		c.mu.Unlock()
		return ctx, true
	}
	c.mu.Unlock()

	ctx, err := c.loadFromDisk(fingerprint)
	if err != nil {
		logger.With("component", "rewardctx").Warn("disk cache read failed", "fingerprint", fingerprint, "error", err)
		return nil, false
	}
	if ctx == nil {
		return nil, false
	}

	c.mu.Lock()
	c.insertLocked(fingerprint, ctx)
	c.mu.Unlock()
	return ctx, true
}

// Put stores context under fingerprint in both the memory LRU and the disk
// cache. Disk writes are atomic (write to a temp file, then rename) so a
// crash mid-write never leaves a corrupt cache file.
func (c *Cache) Put(fingerprint string, context []float32) error {
	c.mu.Lock()
	c.insertLocked(fingerprint, context)
	c.mu.Unlock()

	return c.saveToDisk(fingerprint, context)
}

// insertLocked must be called with c.mu held. It inserts or refreshes an
// entry and evicts the least-recently-used one if over capacity.
func (c *Cache) insertLocked(fingerprint string, context []float32) {
	if el, ok := c.items[fingerprint]; ok {
		el.Value.(*cacheEntry).context = context
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: fingerprint, context: context})
	c.items[fingerprint] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Clear empties the memory tier. Disk entries survive a Clear; they are only
// removed by explicit cache-directory maintenance outside this type.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

func (c *Cache) diskPath(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".bin")
}

// DiskPath exposes the on-disk cache file path for a fingerprint, used by
// the dispatcher to populate smpl_update/get_current_context's cache_file
// field once a context has actually been persisted.
func (c *Cache) DiskPath(fingerprint string) string {
	return c.diskPath(fingerprint)
}

// saveToDisk writes a context as a flat little-endian float32 array, a
// simpler encoding than original_source's npz but equivalent in spirit: a
// headerless binary blob named by fingerprint.
func (c *Cache) saveToDisk(fingerprint string, context []float32) error {
	tmp, err := os.CreateTemp(c.dir, "ctx-*.tmp")
	if err != nil {
		return fmt.Errorf("rewardctx: creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	buf := make([]byte, 4*len(context))
	for i, f := range context {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("rewardctx: writing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rewardctx: closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, c.diskPath(fingerprint)); err != nil {
		return fmt.Errorf("rewardctx: renaming cache file into place: %w", err)
	}
	return nil
}

func (c *Cache) loadFromDisk(fingerprint string) ([]float32, error) {
	data, err := os.ReadFile(c.diskPath(fingerprint))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("rewardctx: cache file %s has truncated length %d", fingerprint, len(data))
	}
	ctx := make([]float32, len(data)/4)
	for i := range ctx {
		ctx[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return ctx, nil
}
