package scripting

import (
	"context"

	"go.uber.org/zap"

	"github.com/acruikshank/scriptpool/pkg/errors"
	"github.com/acruikshank/scriptpool/pkg/logger"
	"github.com/acruikshank/scriptpool/pkg/metrics"
)

// PooledScope is a borrow-scoped wrapper around a pooled scope. Every
// Scope capability is forwarded to the backing scope through the
// embedded interface; Close returns the scope to the owning pool, or
// destroys it when the pool is gone.
type PooledScope struct {
	Scope
	pool string
	log  *zap.Logger
}

// GetPooledScope borrows a scope from the calling goroutine's pool for
// the given pool name, creating one through the registered engine when
// nothing is idle. The scopeType discriminator keeps differently
// initialized scopes for the same pool apart. The scope's stored
// functions are synchronized before it is handed out; failure to reach
// the repository is logged, not fatal.
func GetPooledScope(ctx context.Context, pool string, scopeType string) (*PooledScope, error) {
	eng := Global()
	if eng == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "no script engine registered")
	}

	key := pool + scopeType
	cache := ensureCache()

	s := cache.get(key)
	if s == nil {
		metrics.ScopePoolMisses.WithLabelValues(key).Inc()
		created, err := eng.NewScope()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "creating scope")
		}
		cache.addActive(created)
		s = created
	} else {
		metrics.ScopePoolHits.WithLabelValues(key).Inc()
	}

	p := &PooledScope{
		Scope: s,
		pool:  key,
		log:   logger.With(zap.String("pool", key)),
	}
	p.SetLocalDB(pool)
	if err := p.LoadStored(ctx, true); err != nil {
		p.log.Warn("unable to synchronize stored functions", zap.Error(err))
	}
	return p, nil
}

// Close releases the backing scope exactly once. When the calling
// goroutine owns a scope cache the scope is returned to it; otherwise
// the scope is being released from a different goroutine than the one
// that borrowed it (a cancelled long-running operation, typically) and
// is destroyed directly. That fallback is a recoverable anomaly, not an
// error.
func (p *PooledScope) Close() error {
	if p.Scope == nil {
		return nil
	}
	real := p.Scope
	p.Scope = nil

	if cache := currentCache(); cache != nil {
		cache.done(p.pool, real)
		return nil
	}

	p.log.Warn("no scope cache on this goroutine, destroying scope directly")
	metrics.ScopeEvictions.WithLabelValues("cross_thread").Inc()
	return real.Close()
}
