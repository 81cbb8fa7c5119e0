// Package scriptingtest provides an in-memory script engine and
// stored-function store for testing the pooling and synchronization
// core without a real runtime.
package scriptingtest

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/acruikshank/scriptpool/pkg/scripting"
)

// Engine is a fake scripting.Engine. Every scope it creates is recorded
// so tests can assert on lifecycle events.
type Engine struct {
	mu     sync.Mutex
	scopes []*FakeScope

	// NewScopeErr, when set, is returned by NewScope.
	NewScopeErr error
}

// NewEngine creates a fake engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Name implements scripting.Engine.
func (e *Engine) Name() string { return "fake" }

// NewScope implements scripting.Engine.
func (e *Engine) NewScope() (scripting.Scope, error) {
	if e.NewScopeErr != nil {
		return nil, e.NewScopeErr
	}
	s := NewFakeScope()
	e.mu.Lock()
	e.scopes = append(e.scopes, s)
	e.mu.Unlock()
	return s, nil
}

// Scopes returns every scope the engine created, in creation order.
func (e *Engine) Scopes() []*FakeScope {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*FakeScope, len(e.scopes))
	copy(out, e.scopes)
	return out
}

// FakeScope is an in-memory scripting.Scope. Bindings live in a map,
// compilation assigns identifiers without parsing, and error and
// out-of-memory state can be forced by tests.
type FakeScope struct {
	scripting.CoreScope

	Bindings map[string]interface{}
	Executed []string
	Closed   bool
	Resets   int

	// ScriptError and OOM are reported by LastError and HasOutOfMemory.
	ScriptError string
	OOM         bool

	// CompileID, when non-zero, is returned by Compile instead of the
	// default identifier, modelling an engine with its own numbering.
	CompileID scripting.ScriptingFunction
	// CompileErr, when set, fails every compilation.
	CompileErr error
	// BindErr, when set, fails BindStored for names present in the map.
	BindErr map[string]error
	// ExecResult is what Exec reports; defaults to success.
	ExecFails bool
}

// NewFakeScope creates a fake scope wired to its own CoreScope.
func NewFakeScope() *FakeScope {
	s := &FakeScope{
		Bindings: make(map[string]interface{}),
	}
	s.CoreScope = scripting.NewCoreScope(s)
	return s
}

// Reset implements scripting.Scope.
func (s *FakeScope) Reset() {
	s.ScriptError = ""
	s.Resets++
}

// Close implements scripting.Scope.
func (s *FakeScope) Close() error {
	s.Closed = true
	return nil
}

// LastError implements scripting.Scope.
func (s *FakeScope) LastError() string { return s.ScriptError }

// HasOutOfMemory implements scripting.Scope.
func (s *FakeScope) HasOutOfMemory() bool { return s.OOM }

// Typed binding accessors.

func (s *FakeScope) GetNumber(name string) float64 {
	v, _ := s.Bindings[name].(float64)
	return v
}

func (s *FakeScope) GetString(name string) string {
	v, _ := s.Bindings[name].(string)
	return v
}

func (s *FakeScope) GetBoolean(name string) bool {
	v, _ := s.Bindings[name].(bool)
	return v
}

func (s *FakeScope) GetObject(name string) bson.M {
	v, _ := s.Bindings[name].(bson.M)
	return v
}

func (s *FakeScope) SetNumber(name string, v float64) error {
	s.Bindings[name] = v
	return nil
}

func (s *FakeScope) SetString(name string, v string) error {
	s.Bindings[name] = v
	return nil
}

func (s *FakeScope) SetBoolean(name string, v bool) error {
	s.Bindings[name] = v
	return nil
}

func (s *FakeScope) SetObject(name string, v bson.M) error {
	s.Bindings[name] = v
	return nil
}

func (s *FakeScope) SetElement(name string, v bson.RawValue) error {
	s.Bindings[name] = v
	return nil
}

func (s *FakeScope) SetFunction(name string, code string) error {
	fn, err := s.CreateFunction(code)
	if err != nil {
		return err
	}
	s.Bindings[name] = fn
	return nil
}

// Invoke implements scripting.Scope; it records nothing and succeeds
// unless a script error has been forced.
func (s *FakeScope) Invoke(fn scripting.ScriptingFunction, args bson.M, recv bson.M, opts scripting.InvokeOptions) error {
	if s.ScriptError != "" {
		return fmt.Errorf("script error: %s", s.ScriptError)
	}
	return nil
}

// ScopeDriver implementation, consumed by the embedded CoreScope.

// Compile implements scripting.ScopeDriver.
func (s *FakeScope) Compile(code string, fn scripting.ScriptingFunction) (scripting.ScriptingFunction, error) {
	if s.CompileErr != nil {
		return 0, s.CompileErr
	}
	if s.CompileID != 0 {
		return s.CompileID, nil
	}
	return 0, nil // adopt the default identifier
}

// BindStored implements scripting.ScopeDriver.
func (s *FakeScope) BindStored(name string, value bson.RawValue) error {
	if err := s.BindErr[name]; err != nil {
		return err
	}
	s.Bindings[name] = value
	return nil
}

// ExecSetup implements scripting.ScopeDriver.
func (s *FakeScope) ExecSetup(code string, name string) error {
	s.Executed = append(s.Executed, code)
	if len(code) > len("delete ") && code[:len("delete ")] == "delete " {
		delete(s.Bindings, code[len("delete "):])
	}
	return nil
}

// Exec implements scripting.ScopeDriver and scripting.Scope.
func (s *FakeScope) Exec(code string, name string, opts scripting.ExecOptions) bool {
	s.Executed = append(s.Executed, code)
	return !s.ExecFails
}

// Store is an in-memory scripting.FunctionStore.
type Store struct {
	mu sync.Mutex

	// Functions maps database name to stored functions.
	Functions map[string][]scripting.StoredFunction
	// Err, when set, fails every fetch.
	Err error

	Fetches int
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{Functions: make(map[string][]scripting.StoredFunction)}
}

// Set replaces the stored functions for db. Callers are responsible for
// bumping scripting.StoredFuncMod, as the real write paths are.
func (st *Store) Set(db string, funcs ...scripting.StoredFunction) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Functions[db] = funcs
}

// StoredFunctions implements scripting.FunctionStore.
func (st *Store) StoredFunctions(ctx context.Context, db string) ([]scripting.StoredFunction, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.Err != nil {
		return nil, st.Err
	}
	st.Fetches++
	out := make([]scripting.StoredFunction, len(st.Functions[db]))
	copy(out, st.Functions[db])
	return out, nil
}

// StringValue builds a bson.RawValue holding s, for stored-function
// test fixtures.
func StringValue(s string) bson.RawValue {
	typ, data, err := bson.MarshalValue(s)
	if err != nil {
		panic(err)
	}
	return bson.RawValue{Type: typ, Value: data}
}
