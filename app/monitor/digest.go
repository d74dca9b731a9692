package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/bankwatch/app/news"
)

const DefaultDigestsPerSubscriber = 10

type EntityDigest struct {
	Entity   string              `json:"entity"`
	Count    int                 `json:"count"`
	Negative int                 `json:"negative"`
	Items    []news.EnrichedItem `json:"items"`
}

// Digest is the result of one monitoring pass for one subscriber.
type Digest struct {
	PassID       string         `json:"pass_id"`
	SubscriberID string         `json:"subscriber_id"`
	CreatedAt    time.Time      `json:"created_at"`
	Entities     []EntityDigest `json:"entities"`
	Total        int            `json:"total"`
}

// Text renders the digest notification.
func (d *Digest) Text(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Найдены новости по вашим подпискам на %s\n", d.CreatedAt.In(loc).Format("02.01.2006 15:04"))
	for _, e := range d.Entities {
		if e.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "• %s: %d новых (%d негативных)\n", e.Entity, e.Count, e.Negative)
	}
	fmt.Fprintf(&b, "\nВсего: %d", d.Total)
	return b.String()
}

const nothingNewText = "Новых новостей по вашим подпискам не найдено. Мониторинг продолжается."

// DigestCache keeps the most recent digests of every subscriber in memory.
type DigestCache struct {
	mu       sync.RWMutex
	capacity int
	digests  map[string][]*Digest
}

func NewDigestCache(capacity int) *DigestCache {
	if capacity <= 0 {
		capacity = DefaultDigestsPerSubscriber
	}
	return &DigestCache{
		capacity: capacity,
		digests:  make(map[string][]*Digest),
	}
}

// Add stores d, evicting the subscriber's oldest digest when full.
func (c *DigestCache) Add(d *Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := append(c.digests[d.SubscriberID], d)
	if len(list) > c.capacity {
		list = list[len(list)-c.capacity:]
	}
	c.digests[d.SubscriberID] = list
}

func (c *DigestCache) Get(subscriberID, passID string) (*Digest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, d := range c.digests[subscriberID] {
		if d.PassID == passID {
			return d, true
		}
	}
	return nil, false
}

// List returns the subscriber's digests, newest first.
func (c *DigestCache) List(subscriberID string) []*Digest {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.digests[subscriberID]
	out := make([]*Digest, len(list))
	for i, d := range list {
		out[len(list)-1-i] = d
	}
	return out
}
