package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const numShards = 16

// Quote is one cached price and when it was observed.
type Quote struct {
	Price decimal.Decimal
	At    time.Time
}

// ShardedPriceCache holds the last observed price per asset id. The REST price service,
// the websocket feed and the mock feed all write here; ownership math reads from it.
type ShardedPriceCache struct {
	shards [numShards]shard
	now    func() time.Time
}

type shard struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewShardedPriceCache() *ShardedPriceCache {
	c := &ShardedPriceCache{now: time.Now}
	for i := range c.shards {
		c.shards[i].quotes = make(map[string]Quote)
	}
	return c
}

func (c *ShardedPriceCache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.shards[h.Sum32()%numShards]
}

// Set records price as observed now.
func (c *ShardedPriceCache) Set(key string, price decimal.Decimal) {
	c.SetAt(key, price, c.now())
}

// SetAt records a price observed at at. Non-positive prices and quotes older than the
// cached one are dropped, so a slow REST response cannot overwrite a newer stream tick.
func (c *ShardedPriceCache) SetAt(key string, price decimal.Decimal, at time.Time) bool {
	if !price.IsPositive() {
		return false
	}
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.quotes[key]; ok && at.Before(cur.At) {
		return false
	}
	s.quotes[key] = Quote{Price: price, At: at}
	return true
}

func (c *ShardedPriceCache) Quote(key string) (Quote, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	q, ok := s.quotes[key]
	s.mu.RUnlock()
	return q, ok
}

func (c *ShardedPriceCache) Get(key string) (decimal.Decimal, bool) {
	q, ok := c.Quote(key)
	return q.Price, ok
}

// GetWithAge returns the price and how long ago it was observed.
func (c *ShardedPriceCache) GetWithAge(key string) (decimal.Decimal, time.Duration, bool) {
	q, ok := c.Quote(key)
	if !ok {
		return decimal.Zero, 0, false
	}
	return q.Price, c.now().Sub(q.At), true
}

// Clear drops every entry; used by ledger reset.
func (c *ShardedPriceCache) Clear() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		s.quotes = make(map[string]Quote)
		s.mu.Unlock()
	}
}

func (c *ShardedPriceCache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.quotes)
		s.mu.RUnlock()
	}
	return n
}
