package scripting

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/acruikshank/scriptpool/pkg/logger"
	"github.com/acruikshank/scriptpool/pkg/metrics"
)

const (
	// maxIdleScopesPerPool bounds how many idle scopes one pool key retains.
	maxIdleScopesPerPool = 10
	// maxScopeReuse bounds how many times one scope is handed out.
	maxScopeReuse = 10
)

// scopeCache is one worker goroutine's registry of idle scopes, keyed
// by pool name. All pool contents are confined to the owning goroutine;
// the single mutex only orders get/done/clear/addActive against each
// other when a scope is released from elsewhere.
type scopeCache struct {
	mu     sync.Mutex
	pools  map[string][]Scope
	active map[Scope]struct{}
}

func newScopeCache() *scopeCache {
	return &scopeCache{
		pools:  make(map[string][]Scope),
		active: make(map[Scope]struct{}),
	}
}

// get pops the most recently idle scope for pool, moving it to the
// active set. Returns nil when nothing is idle; the caller creates a
// scope through the engine and registers it with addActive.
func (c *scopeCache) get(pool string) Scope {
	c.mu.Lock()
	defer c.mu.Unlock()

	idle := c.pools[pool]
	if len(idle) == 0 {
		return nil
	}

	s := idle[len(idle)-1]
	c.pools[pool] = idle[:len(idle)-1]
	c.active[s] = struct{}{}
	metrics.IdleScopes.Dec()

	s.Reset()
	s.IncTimesUsed()
	return s
}

// addActive registers a freshly created scope as checked out. If the
// cache is cleared before the scope comes back, the scope is orphaned
// and done destroys it instead of pooling it.
func (c *scopeCache) addActive(s Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[s] = struct{}{}
}

// done releases a borrowed scope. Scopes past their retention limits,
// carrying an error, out of memory, or orphaned are destroyed; the rest
// go back on the idle list. An out-of-memory return additionally clears
// every pool to shed memory pressure.
func (c *scopeCache) done(pool string, s Scope) {
	c.mu.Lock()

	oom := s.HasOutOfMemory()

	// orphaned scopes were in use while the cache was cleared; they must
	// not be pooled since authentication credentials may have changed
	_, wasActive := c.active[s]
	delete(c.active, s)
	orphaned := !wasActive

	reason := ""
	switch {
	case len(c.pools[pool]) >= maxIdleScopesPerPool:
		reason = "pool_full"
	case s.TimesUsed() > maxScopeReuse:
		reason = "overused"
	case s.LastError() != "":
		reason = "error"
	case oom:
		reason = "oom"
	case orphaned:
		reason = "orphaned"
	}

	if reason != "" {
		_ = s.Close()
		metrics.ScopeEvictions.WithLabelValues(reason).Inc()
	} else {
		c.pools[pool] = append(c.pools[pool], s)
		s.Reset()
		metrics.IdleScopes.Inc()
	}
	c.mu.Unlock()

	if oom {
		logger.Warn("clearing all idle scopes due to out of memory",
			memoryPressureFields()...)
		c.clear()
	}
}

// clear destroys every idle scope and empties the active set. Scopes
// currently checked out are untouched; they become orphaned and are
// destroyed on return. A scope found on two idle lists means the pool
// bookkeeping is corrupt and the process cannot safely continue.
func (c *scopeCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[Scope]struct{})
	cleared := 0
	for _, idle := range c.pools {
		for _, s := range idle {
			if _, dup := seen[s]; dup {
				logger.Fatal("scope present twice in idle pools, bookkeeping is corrupt")
			}
			seen[s] = struct{}{}
			_ = s.Close()
			cleared++
		}
	}

	c.pools = make(map[string][]Scope)
	c.active = make(map[Scope]struct{})

	if cleared > 0 {
		metrics.IdleScopes.Sub(float64(cleared))
		metrics.ScopeEvictions.WithLabelValues("cleared").Add(float64(cleared))
	}
}

// Per-goroutine cache registry. Each worker goroutine owns exactly one
// scopeCache for its lifetime, looked up by goroutine id.
var (
	cachesMu sync.RWMutex
	caches   = make(map[int64]*scopeCache)

	shuttingDown atomic.Bool
)

// currentCache returns the calling goroutine's cache, nil if it never
// requested a pooled scope.
func currentCache() *scopeCache {
	cachesMu.RLock()
	defer cachesMu.RUnlock()
	return caches[goid.Get()]
}

// ensureCache returns the calling goroutine's cache, creating and
// registering one on first use.
func ensureCache() *scopeCache {
	gid := goid.Get()

	cachesMu.RLock()
	c := caches[gid]
	cachesMu.RUnlock()
	if c != nil {
		return c
	}

	cachesMu.Lock()
	defer cachesMu.Unlock()
	if c = caches[gid]; c == nil {
		c = newScopeCache()
		caches[gid] = c
	}
	return c
}

// ThreadDone tears down the calling worker goroutine's scope cache,
// destroying its idle scopes. Workers must call it before exiting.
// During process shutdown the clear is skipped to avoid racing engine
// teardown.
func ThreadDone() {
	gid := goid.Get()

	cachesMu.Lock()
	c := caches[gid]
	delete(caches, gid)
	cachesMu.Unlock()

	if c != nil && !shuttingDown.Load() {
		c.clear()
	}
}

// MarkShutdown flags that the process is shutting down, disabling the
// clear in ThreadDone.
func MarkShutdown() {
	shuttingDown.Store(true)
}

// memoryPressureFields snapshots system memory for the OOM clear log line.
func memoryPressureFields() []zap.Field {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil
	}
	return []zap.Field{
		zap.Uint64("sys_mem_used_bytes", vm.Used),
		zap.Float64("sys_mem_used_percent", vm.UsedPercent),
	}
}
