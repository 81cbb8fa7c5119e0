package scripting

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// stubScope is a minimal Scope for pool tests. It tracks lifecycle
// events and lets tests force error and out-of-memory state.
type stubScope struct {
	localDB   string
	timesUsed int
	scriptErr string
	oom       bool
	closed    bool
	resets    int
	loads     int
}

func (s *stubScope) Reset()                   { s.resets++; s.scriptErr = "" }
func (s *stubScope) Close() error             { s.closed = true; return nil }
func (s *stubScope) SetLocalDB(db string)     { s.localDB = db }
func (s *stubScope) LocalDB() string          { return s.localDB }
func (s *stubScope) TimesUsed() int           { return s.timesUsed }
func (s *stubScope) IncTimesUsed()            { s.timesUsed++ }
func (s *stubScope) LastError() string        { return s.scriptErr }
func (s *stubScope) HasOutOfMemory() bool     { return s.oom }
func (s *stubScope) GetNumber(string) float64 { return 0 }
func (s *stubScope) GetString(string) string  { return "" }
func (s *stubScope) GetBoolean(string) bool   { return false }
func (s *stubScope) GetObject(string) bson.M  { return nil }

func (s *stubScope) SetNumber(string, float64) error        { return nil }
func (s *stubScope) SetString(string, string) error         { return nil }
func (s *stubScope) SetBoolean(string, bool) error          { return nil }
func (s *stubScope) SetObject(string, bson.M) error         { return nil }
func (s *stubScope) SetElement(string, bson.RawValue) error { return nil }
func (s *stubScope) SetFunction(string, string) error       { return nil }

func (s *stubScope) CreateFunction(string) (ScriptingFunction, error) { return 1, nil }

func (s *stubScope) Invoke(ScriptingFunction, bson.M, bson.M, InvokeOptions) error { return nil }
func (s *stubScope) Exec(string, string, ExecOptions) bool                         { return true }
func (s *stubScope) ExecFile(string, ExecOptions) bool                             { return true }

func (s *stubScope) LoadStored(context.Context, bool) error { s.loads++; return nil }

// stubEngine hands out stubScopes and records them.
type stubEngine struct {
	created []*stubScope
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) NewScope() (Scope, error) {
	s := &stubScope{}
	e.created = append(e.created, s)
	return s, nil
}

// stubDriver backs CoreScope in cache and runner tests.
type stubDriver struct {
	compiles   int
	compileID  ScriptingFunction
	compileErr error

	bindErr  map[string]error
	bound    map[string]bson.RawValue
	setups   []string
	executed []string
	execFail bool
}

func newStubDriver() *stubDriver {
	return &stubDriver{bound: make(map[string]bson.RawValue)}
}

func (d *stubDriver) Compile(code string, fn ScriptingFunction) (ScriptingFunction, error) {
	d.compiles++
	if d.compileErr != nil {
		return 0, d.compileErr
	}
	return d.compileID, nil
}

func (d *stubDriver) BindStored(name string, value bson.RawValue) error {
	if err := d.bindErr[name]; err != nil {
		return err
	}
	d.bound[name] = value
	return nil
}

func (d *stubDriver) ExecSetup(code, name string) error {
	d.setups = append(d.setups, code)
	if rest, ok := strings.CutPrefix(code, "delete "); ok {
		delete(d.bound, rest)
	}
	return nil
}

func (d *stubDriver) Exec(code, name string, opts ExecOptions) bool {
	d.executed = append(d.executed, code)
	return !d.execFail
}

// stubStore is an in-memory FunctionStore with fetch accounting.
type stubStore struct {
	funcs   map[string][]StoredFunction
	err     error
	fetches int
}

func newStubStore() *stubStore {
	return &stubStore{funcs: make(map[string][]StoredFunction)}
}

func (st *stubStore) set(db string, names ...string) {
	funcs := make([]StoredFunction, 0, len(names))
	for _, n := range names {
		funcs = append(funcs, StoredFunction{Name: n, Value: rawString("function() {}")})
	}
	st.funcs[db] = funcs
}

func (st *stubStore) StoredFunctions(ctx context.Context, db string) ([]StoredFunction, error) {
	if st.err != nil {
		return nil, st.err
	}
	st.fetches++
	return st.funcs[db], nil
}

func rawString(s string) bson.RawValue {
	typ, data, err := bson.MarshalValue(s)
	if err != nil {
		panic(fmt.Sprintf("marshal %q: %v", s, err))
	}
	return bson.RawValue{Type: typ, Value: data}
}
