package signature

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// ReplayCache remembers accepted MACs for a while so that an identical
// request cannot be accepted twice by the same process.
type ReplayCache struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewReplayCache creates a cache that forgets entries after ttl and
// starts its expiry loop. Call Stop to release it.
func NewReplayCache(ttl time.Duration) *ReplayCache {
	cache := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](ttl),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go cache.Start()
	return &ReplayCache{cache: cache}
}

// Remember records mac and reports whether it was seen before.
func (r *ReplayCache) Remember(mac string) (seen bool) {
	_, seen = r.cache.GetOrSet(mac, struct{}{})
	return seen
}

// Len returns the number of remembered MACs.
func (r *ReplayCache) Len() int {
	return r.cache.Len()
}

// Stop halts the expiry loop.
func (r *ReplayCache) Stop() {
	r.cache.Stop()
}
