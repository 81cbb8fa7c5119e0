package scripting

import (
	"context"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/acruikshank/scriptpool/pkg/errors"
	"github.com/acruikshank/scriptpool/pkg/logger"
	"github.com/acruikshank/scriptpool/pkg/metrics"
)

// lastVersion is the process-wide stored-function version. It is the
// only state shared across worker goroutines; monotonicity is all that
// correctness needs, so a plain atomic suffices. A stale read causes at
// most one extra, idempotent reload.
var lastVersion atomic.Int64

func init() {
	lastVersion.Store(1)
}

// StoredFuncMod records that the stored-function repository changed.
// Every write path that touches the repository must call it.
func StoredFuncMod() {
	lastVersion.Add(1)
}

// StoredFuncVersion reports the current stored-function version.
func StoredFuncVersion() int64 {
	return lastVersion.Load()
}

// CoreScope supplies the engine-independent half of a Scope: the
// compiled-function cache, stored-function synchronization, script file
// execution, and use bookkeeping. Engine scopes embed it and hand
// themselves in as the ScopeDriver.
type CoreScope struct {
	driver ScopeDriver
	log    *zap.Logger

	localDBName   string
	loadedVersion int64
	timesUsed     int

	storedNames map[string]struct{}
	funcCache   map[string]ScriptingFunction

	// store overrides the process-wide repository when non-nil
	store FunctionStore
}

// NewCoreScope builds the embedded core for an engine scope.
func NewCoreScope(driver ScopeDriver) CoreScope {
	return CoreScope{
		driver:      driver,
		log:         logger.Get(),
		storedNames: make(map[string]struct{}),
		funcCache:   make(map[string]ScriptingFunction),
	}
}

// SetLocalDB binds the scope to a local database.
func (c *CoreScope) SetLocalDB(db string) {
	c.localDBName = db
}

// LocalDB reports the bound local database.
func (c *CoreScope) LocalDB() string {
	return c.localDBName
}

// TimesUsed reports how many times the pool handed this scope out.
func (c *CoreScope) TimesUsed() int {
	return c.timesUsed
}

// IncTimesUsed bumps the use counter.
func (c *CoreScope) IncTimesUsed() {
	c.timesUsed++
}

// SetFunctionStore overrides the repository for this scope. The
// process-wide store installed with SetStore is used when unset.
func (c *CoreScope) SetFunctionStore(s FunctionStore) {
	c.store = s
}

// StoredNames reports the names currently mirrored from the repository.
func (c *CoreScope) StoredNames() []string {
	names := make([]string, 0, len(c.storedNames))
	for n := range c.storedNames {
		names = append(names, n)
	}
	return names
}

// CreateFunction compiles source text, reusing a previously compiled
// function when the normalized source was seen before in this scope.
// The default identifier handed to the engine is cache size + 1; the
// engine's own non-zero identifier wins when it returns one.
func (c *CoreScope) CreateFunction(code string) (ScriptingFunction, error) {
	code = StripLeadingComment(code)

	if fn, ok := c.funcCache[code]; ok {
		metrics.CompileCacheHits.Inc()
		return fn, nil
	}
	metrics.CompileCacheMisses.Inc()

	defaultFn := ScriptingFunction(len(c.funcCache) + 1)
	fn, err := c.driver.Compile(code, defaultFn)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeScript, "compile failed")
	}
	if fn == 0 {
		fn = defaultFn
	}
	c.funcCache[code] = fn
	return fn, nil
}

// LoadStored makes the scope's stored functions match the shared
// repository for the bound local database. It is a no-op when the
// repository has not changed since the last synchronization. A fetch
// failure aborts the whole load; a failure to bind one function is
// logged and that function skipped.
func (c *CoreScope) LoadStored(ctx context.Context, ignoreNotConnected bool) error {
	if c.localDBName == "" {
		if ignoreNotConnected {
			return nil
		}
		return errors.New(errors.ErrorTypeConfig, "no local database bound for stored functions")
	}

	current := lastVersion.Load()
	if c.loadedVersion == current {
		return nil
	}

	store := c.store
	if store == nil {
		store = Store()
	}
	if store == nil {
		return errors.New(errors.ErrorTypeConnection, "no stored-function repository configured")
	}

	funcs, err := store.StoredFunctions(ctx, c.localDBName)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "fetching stored functions").
			WithDetail("database", c.localDBName)
	}
	metrics.StoredFunctionReloads.Inc()

	thisTime := make(map[string]struct{}, len(funcs))
	for _, f := range funcs {
		if err := c.driver.BindStored(f.Name, f.Value); err != nil {
			c.log.Warn("unable to load stored function",
				zap.String("name", f.Name),
				zap.String("database", c.localDBName),
				zap.Error(err))
			metrics.StoredFunctionSkips.Inc()
			continue
		}
		thisTime[f.Name] = struct{}{}
		c.storedNames[f.Name] = struct{}{}
	}

	// unbind whatever was removed from the repository
	for name := range c.storedNames {
		if _, ok := thisTime[name]; ok {
			continue
		}
		delete(c.storedNames, name)
		if err := c.driver.ExecSetup("delete "+name, "clean up scope"); err != nil {
			c.log.Warn("unable to unbind removed stored function",
				zap.String("name", name),
				zap.Error(err))
		}
	}

	c.loadedVersion = current
	return nil
}

// ValidateObjectIDString rejects anything that is not exactly 24 hex
// characters, the shape of externally supplied object identifiers.
func ValidateObjectIDString(s string) error {
	if len(s) != 24 {
		return errors.New(errors.ErrorTypeValidation, "invalid object id: length")
	}
	if _, err := primitive.ObjectIDFromHex(s); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "invalid object id: not hex")
	}
	return nil
}
