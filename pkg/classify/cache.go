package classify

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of records kept when no size is configured.
const DefaultCacheSize = 100

// Cache stores classification records keyed by the exact input text.
type Cache interface {
	Get(text string) (*Record, bool)
	Add(text string, rec *Record)
	Len() int
}

// CacheStats reports lookups served by an LRU.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// LRU is a bounded, goroutine-safe Cache.
type LRU struct {
	c      *lru.Cache[string, *Record]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewLRU returns an LRU holding at most size records. A size below 1 uses
// DefaultCacheSize.
func NewLRU(size int) *LRU {
	if size < 1 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *Record](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &LRU{c: c}
}

func (l *LRU) Get(text string) (*Record, bool) {
	rec, ok := l.c.Get(text)
	if ok {
		l.hits.Add(1)
	} else {
		l.misses.Add(1)
	}
	return rec, ok
}

func (l *LRU) Add(text string, rec *Record) {
	l.c.Add(text, rec)
}

func (l *LRU) Len() int { return l.c.Len() }

func (l *LRU) Stats() CacheStats {
	s := CacheStats{Hits: l.hits.Load(), Misses: l.misses.Load(), Size: l.c.Len()}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
