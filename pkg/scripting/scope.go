package scripting

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/acruikshank/scriptpool/pkg/errors"
)

// ScriptingFunction identifies a compiled function within one scope.
// Identifiers are dense, starting at 1; zero means "no function".
type ScriptingFunction uint64

// ExecOptions controls direct execution of script source.
type ExecOptions struct {
	// PrintResult echoes the evaluation result
	PrintResult bool
	// ReportError surfaces script errors to the log
	ReportError bool
	// Timeout bounds execution; zero means no limit. Enforcement is the
	// engine's responsibility.
	Timeout time.Duration
}

// InvokeOptions controls invocation of a compiled function.
type InvokeOptions struct {
	Timeout      time.Duration
	IgnoreReturn bool
	ReadOnlyArgs bool
	ReadOnlyRecv bool
}

// Scope is the capability interface of one isolated script execution
// environment. Engine implementations embed CoreScope for the
// engine-independent machinery and supply the rest.
//
// Scopes are not safe for concurrent use. The pool hands each scope to
// one caller at a time.
type Scope interface {
	// Reset clears transient state (pending errors, last return value)
	// so the scope can be reused. It does not unbind stored functions
	// and does not reset the use counter.
	Reset()

	// Close destroys the scope and releases engine resources. A scope
	// must not be used after Close.
	Close() error

	// SetLocalDB binds the scope to a local database whose stored
	// functions LoadStored mirrors into the scope.
	SetLocalDB(db string)
	// LocalDB reports the bound local database, empty if none.
	LocalDB() string

	// TimesUsed reports how many times the scope was handed out by the
	// pool. IncTimesUsed is called by the pool on every get.
	TimesUsed() int
	IncTimesUsed()

	// LastError reports the most recent script error, empty if none.
	LastError() string
	// HasOutOfMemory reports whether the engine signalled memory
	// exhaustion. Such scopes are never pooled again.
	HasOutOfMemory() bool

	// Typed binding accessors.
	GetNumber(name string) float64
	GetString(name string) string
	GetBoolean(name string) bool
	GetObject(name string) bson.M
	SetNumber(name string, v float64) error
	SetString(name string, v string) error
	SetBoolean(name string, v bool) error
	SetObject(name string, v bson.M) error
	// SetElement binds a raw stored value under name.
	SetElement(name string, v bson.RawValue) error
	// SetFunction compiles code and binds the result under name.
	SetFunction(name string, code string) error

	// CreateFunction compiles code, consulting the per-scope cache of
	// previously compiled normalized source first.
	CreateFunction(code string) (ScriptingFunction, error)

	// Invoke runs a previously compiled function.
	Invoke(fn ScriptingFunction, args bson.M, recv bson.M, opts InvokeOptions) error

	// Exec runs source text directly, returning success. Failures are
	// logged, not returned, so callers across the pooling boundary
	// never see an error value (name labels the source in diagnostics).
	Exec(code string, name string, opts ExecOptions) bool

	// ExecFile runs a script file, or every matching script file in a
	// directory tree.
	ExecFile(path string, opts ExecOptions) bool

	// LoadStored synchronizes the scope's stored functions with the
	// shared repository for the bound local database.
	LoadStored(ctx context.Context, ignoreNotConnected bool) error
}

// ScopeDriver is the narrow set of engine primitives CoreScope needs.
// Engine scope implementations pass themselves as the driver when
// constructing their embedded CoreScope.
type ScopeDriver interface {
	// Compile compiles source text. fn is a default identifier the
	// engine may adopt; a non-zero return value is authoritative.
	Compile(code string, fn ScriptingFunction) (ScriptingFunction, error)
	// BindStored binds a stored-function value under name.
	BindStored(name string, value bson.RawValue) error
	// ExecSetup runs housekeeping source (such as unbinding a deleted
	// stored function) where failure is an error, not a log entry.
	ExecSetup(code string, name string) error
	// Exec runs source text, see Scope.Exec.
	Exec(code string, name string, opts ExecOptions) bool
}

// InvokeCode compiles code and invokes the result in one step.
func InvokeCode(s Scope, code string, args bson.M, recv bson.M, opts InvokeOptions) error {
	fn, err := s.CreateFunction(code)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeScript, "compile failed")
	}
	return s.Invoke(fn, args, recv, opts)
}

// StoredFunction is one (name, value) pair from the shared repository.
type StoredFunction struct {
	Name  string
	Value bson.RawValue
}

// FunctionStore is the repository of stored functions, keyed by local
// database name.
type FunctionStore interface {
	// StoredFunctions returns every stored function for db. A fetch
	// failure aborts the whole synchronization; there is no partial
	// success at this level.
	StoredFunctions(ctx context.Context, db string) ([]StoredFunction, error)
}

var (
	storeMu     sync.RWMutex
	globalStore FunctionStore
)

// SetStore installs the process-wide stored-function repository.
func SetStore(s FunctionStore) {
	storeMu.Lock()
	defer storeMu.Unlock()
	globalStore = s
}

// Store returns the process-wide stored-function repository, nil if
// none has been installed.
func Store() FunctionStore {
	storeMu.RLock()
	defer storeMu.RUnlock()
	return globalStore
}

// Engine creates scopes. One engine implementation is registered per
// process at startup; the pooling core depends only on this interface.
type Engine interface {
	Name() string
	NewScope() (Scope, error)
}

var (
	engineMu      sync.RWMutex
	engineFactory func() (Engine, error)
	globalEngine  Engine
)

// RegisterEngine installs the engine factory. Exactly one engine is
// selected at build time; calling RegisterEngine twice replaces the
// factory but not a running engine.
func RegisterEngine(factory func() (Engine, error)) {
	engineMu.Lock()
	defer engineMu.Unlock()
	engineFactory = factory
}

// Setup instantiates the registered engine. It must be called once
// during process startup, before any scope is requested.
func Setup() error {
	engineMu.Lock()
	defer engineMu.Unlock()
	if engineFactory == nil {
		return errors.New(errors.ErrorTypeConfig, "no script engine registered")
	}
	if globalEngine != nil {
		return nil
	}
	eng, err := engineFactory()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "creating script engine")
	}
	globalEngine = eng
	return nil
}

// Global returns the process engine, nil before Setup.
func Global() Engine {
	engineMu.RLock()
	defer engineMu.RUnlock()
	return globalEngine
}

// resetEngine clears engine state, for tests.
func resetEngine() {
	engineMu.Lock()
	defer engineMu.Unlock()
	engineFactory = nil
	globalEngine = nil
}
