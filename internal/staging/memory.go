package staging

import (
	"bytes"
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type memoryEntry struct {
	key         string
	content     []byte
	contentType string
	expiresAt   time.Time
	index       int
}

// expiryQueue é um min-heap por expiresAt; o topo é a próxima entrada a expirar.
type expiryQueue []*memoryEntry

func (q expiryQueue) Len() int           { return len(q) }
func (q expiryQueue) Less(i, j int) bool { return q[i].expiresAt.Before(q[j].expiresAt) }

func (q expiryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *expiryQueue) Push(x any) {
	entry := x.(*memoryEntry)
	entry.index = len(*q)
	*q = append(*q, entry)
}

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*q = old[:n-1]
	return entry
}

// MemoryCache mantém os uploads no processo, limitado por item, por total e por TTL.
type MemoryCache struct {
	limits Limits
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]*memoryEntry
	queue   expiryQueue
	total   int64
}

// Stats resume a ocupação atual do cache.
type Stats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// NewMemoryCache cria o backend em memória.
func NewMemoryCache(limits Limits, logger zerolog.Logger) (*MemoryCache, error) {
	if err := limits.validate(); err != nil {
		return nil, err
	}
	return &MemoryCache{
		limits:  limits,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*memoryEntry),
	}, nil
}

// Add valida e insere uma cópia do conteúdo.
func (c *MemoryCache) Add(ctx context.Context, key string, content []byte, contentType string) error {
	if err := validateEntry(key, content, contentType, c.limits.MaxItemBytes); err != nil {
		return err
	}

	owned := bytes.Clone(content)
	size := int64(len(owned))

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.purgeExpiredLocked(now)

	if prev, ok := c.entries[key]; ok {
		c.removeLocked(prev)
	}

	if c.limits.MaxTotalBytes > 0 {
		for c.total+size > c.limits.MaxTotalBytes && c.queue.Len() > 0 {
			c.evictSoonestLocked()
		}
	}

	entry := &memoryEntry{
		key:         key,
		content:     owned,
		contentType: contentType,
		expiresAt:   now.Add(c.limits.TTL),
	}
	c.entries[key] = entry
	heap.Push(&c.queue, entry)
	c.total += size
	return nil
}

// TryGet devolve uma cópia do blob se existir e não estiver expirado.
func (c *MemoryCache) TryGet(ctx context.Context, key string) (Blob, bool) {
	if key == "" {
		return Blob{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		return Blob{}, false
	}
	return Blob{
		Key:         key,
		Content:     bytes.Clone(entry.content),
		ContentType: entry.contentType,
		ExpiresAt:   entry.expiresAt,
	}, true
}

func (c *MemoryCache) Remove(ctx context.Context, key string) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.removeLocked(entry)
	}
}

func (c *MemoryCache) ContainsKey(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	return ok && c.now().Before(entry.expiresAt)
}

func (c *MemoryCache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.entries)
	c.entries = make(map[string]*memoryEntry)
	c.queue = nil
	c.total = 0
	c.logger.Info().Int("removed", removed).Msg("staging: cache limpo")
}

// Sweep remove entradas expiradas e retorna quantas foram descartadas.
func (c *MemoryCache) Sweep(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked(c.now())
}

func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.entries), Bytes: c.total}
}

// purgeExpiredLocked consome o topo do heap enquanto ele estiver vencido.
func (c *MemoryCache) purgeExpiredLocked(now time.Time) int {
	removed := 0
	for c.queue.Len() > 0 && !now.Before(c.queue[0].expiresAt) {
		c.removeLocked(c.queue[0])
		removed++
	}
	return removed
}

// evictSoonestLocked descarta a entrada mais próxima de expirar.
func (c *MemoryCache) evictSoonestLocked() {
	entry := c.queue[0]
	c.removeLocked(entry)
	c.logger.Warn().Str("key", entry.key).Int("bytes", len(entry.content)).Msg("staging: entrada despejada por limite total")
}

func (c *MemoryCache) removeLocked(entry *memoryEntry) {
	heap.Remove(&c.queue, entry.index)
	delete(c.entries, entry.key)
	c.total -= int64(len(entry.content))
}
