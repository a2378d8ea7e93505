package procmap

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// ResolvedCache caches human-readable "module+offset" strings for the
// end-of-run leak report. It sits above the
// mandatory fixed-size SymbolCache used on the allocation hot path and
// is only ever touched from lifecycle.Shutdown's leak report,
// never from an allocation shim, so its internal locking and
// eviction bookkeeping never risk the re-entrancy the hot path must
// avoid.
type ResolvedCache struct {
	cache *lru.Cache
}

// NewResolvedCache builds a bounded cache holding up to size entries.
func NewResolvedCache(size int) (*ResolvedCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("procmap: new resolved cache: %w", err)
	}
	return &ResolvedCache{cache: c}, nil
}

// Format returns "module+0xoffset" for the given resolution, computing
// and caching it on first use.
func (rc *ResolvedCache) Format(resolver *Resolver, addr uintptr) string {
	if v, ok := rc.cache.Get(addr); ok {
		return v.(string)
	}
	ordinal, offset := resolver.Resolve(addr)
	name := resolver.ModuleName(ordinal)
	var s string
	if name == "" {
		s = fmt.Sprintf("0x%x", addr)
	} else {
		s = fmt.Sprintf("%s+0x%x", name, offset)
	}
	rc.cache.Add(addr, s)
	return s
}
