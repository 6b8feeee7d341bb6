package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/iWorld-y/claim_radar/pkg/logger"
)

// Cache 搜索结果缓存：TTL 过期 + LRU 淘汰。
// 键由查询文本与参数序列化后取 MD5 生成，同一查询不同参数互不命中。
type Cache[V any] struct {
	lru *expirable.LRU[string, V]

	mu        sync.Mutex
	hits      int
	misses    int
	evictions int
}

// Stats 缓存命中统计
type Stats struct {
	Size      int     `json:"size"`
	Hits      int     `json:"hits"`
	Misses    int     `json:"misses"`
	Evictions int     `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// New 创建缓存，maxSize/ttl 为零时默认 1000 条 / 1 小时
func New[V any](maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	c := &Cache[V]{}
	c.lru = expirable.NewLRU[string, V](maxSize, func(string, V) {
		c.mu.Lock()
		c.evictions++
		c.mu.Unlock()
	}, ttl)

	logger.Log.Infof("搜索缓存已初始化: max_size=%d, ttl=%s", maxSize, ttl)
	return c
}

// Key 由查询与参数生成确定性的缓存键
func Key(query string, params map[string]any) string {
	payload := struct {
		Query  string         `json:"query"`
		Params map[string]any `json:"params"`
	}{Query: query, Params: params}
	if payload.Params == nil {
		payload.Params = map[string]any{}
	}

	// map 的 JSON 序列化按键名排序，键是稳定的
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(query)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Get 读取缓存，过期或不存在时返回零值与 false
func (c *Cache[V]) Get(query string, params map[string]any) (V, bool) {
	v, ok := c.lru.Get(Key(query, params))

	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	return v, ok
}

// Set 写入缓存
func (c *Cache[V]) Set(query string, params map[string]any, value V) {
	c.lru.Add(Key(query, params), value)
}

// Purge 清空缓存
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Stats 统计快照
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      c.lru.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
