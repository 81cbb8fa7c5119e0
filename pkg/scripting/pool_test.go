package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeCacheGetEmpty(t *testing.T) {
	c := newScopeCache()
	assert.Nil(t, c.get("app"))
}

func TestScopeCacheStackOrder(t *testing.T) {
	c := newScopeCache()
	s1 := &stubScope{}
	s2 := &stubScope{}
	c.addActive(s1)
	c.addActive(s2)
	c.done("app", s1)
	c.done("app", s2)

	// most recently returned comes back first
	assert.Same(t, s2, c.get("app"))
	assert.Same(t, s1, c.get("app"))
	assert.Nil(t, c.get("app"))
}

func TestScopeCacheGetResetsAndCounts(t *testing.T) {
	c := newScopeCache()
	s := &stubScope{}
	c.addActive(s)
	c.done("app", s)
	require.Equal(t, 1, s.resets) // reset when pooled

	got := c.get("app")
	require.Same(t, s, got)
	assert.Equal(t, 2, s.resets)
	assert.Equal(t, 1, s.timesUsed)
}

func TestScopeCacheIdleBound(t *testing.T) {
	c := newScopeCache()
	scopes := make([]*stubScope, 12)
	for i := range scopes {
		scopes[i] = &stubScope{}
		c.addActive(scopes[i])
		c.done("app", scopes[i])
	}

	c.mu.Lock()
	idle := len(c.pools["app"])
	c.mu.Unlock()
	assert.Equal(t, maxIdleScopesPerPool, idle)

	// the overflow scopes were destroyed, not pooled
	assert.True(t, scopes[10].closed)
	assert.True(t, scopes[11].closed)
	assert.False(t, scopes[9].closed)
}

func TestScopeCacheEvictsOverusedScope(t *testing.T) {
	c := newScopeCache()
	s := &stubScope{timesUsed: maxScopeReuse + 1}
	c.addActive(s)
	c.done("app", s)

	assert.True(t, s.closed)
	assert.Nil(t, c.get("app"))
}

func TestScopeCacheEvictsScopeWithError(t *testing.T) {
	c := newScopeCache()
	s := &stubScope{scriptErr: "ReferenceError: x is not defined"}
	c.addActive(s)
	c.done("app", s)

	assert.True(t, s.closed)
	assert.Nil(t, c.get("app"))
}

func TestScopeCacheOutOfMemoryClearsEverything(t *testing.T) {
	c := newScopeCache()

	idle := &stubScope{}
	c.addActive(idle)
	c.done("other", idle)
	require.False(t, idle.closed)

	oom := &stubScope{oom: true}
	c.addActive(oom)
	c.done("app", oom)

	// the offending scope is destroyed and every pool is drained
	assert.True(t, oom.closed)
	assert.True(t, idle.closed)
	assert.Nil(t, c.get("other"))
}

func TestScopeCacheOrphanedScopeIsDestroyed(t *testing.T) {
	c := newScopeCache()
	s := &stubScope{}
	c.addActive(s)

	// pool invalidated while s is checked out
	c.clear()
	require.False(t, s.closed)

	c.done("app", s)
	assert.True(t, s.closed)
	assert.Nil(t, c.get("app"))
}

func TestScopeCacheClearDestroysIdleScopes(t *testing.T) {
	c := newScopeCache()
	s1 := &stubScope{}
	s2 := &stubScope{}
	c.addActive(s1)
	c.addActive(s2)
	c.done("a", s1)
	c.done("b", s2)

	c.clear()
	assert.True(t, s1.closed)
	assert.True(t, s2.closed)
	assert.Nil(t, c.get("a"))
	assert.Nil(t, c.get("b"))
}

func TestScopeCachePoolKeysAreIndependent(t *testing.T) {
	c := newScopeCache()
	s1 := &stubScope{}
	s2 := &stubScope{}
	c.addActive(s1)
	c.addActive(s2)
	c.done("a", s1)
	c.done("b", s2)

	assert.Same(t, s1, c.get("a"))
	assert.Same(t, s2, c.get("b"))
}

func TestThreadDoneClearsOwnCache(t *testing.T) {
	c := ensureCache()
	s := &stubScope{}
	c.addActive(s)
	c.done("app", s)

	ThreadDone()
	assert.True(t, s.closed)
	assert.Nil(t, currentCache())
}

func TestThreadDoneDuringShutdownSkipsClear(t *testing.T) {
	c := ensureCache()
	s := &stubScope{}
	c.addActive(s)
	c.done("app", s)

	MarkShutdown()
	defer shuttingDown.Store(false)

	ThreadDone()
	assert.False(t, s.closed)
	assert.Nil(t, currentCache())
}
