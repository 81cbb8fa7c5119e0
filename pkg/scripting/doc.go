// Package scripting manages the lifecycle, reuse, and consistency of
// script execution scopes embedded in a long-lived server process.
//
// The package does not evaluate scripts itself. Evaluation is delegated
// to an external engine registered at startup through RegisterEngine;
// everything here depends only on the Scope capability interface. What
// the package does own is the resource management around the engine:
//
//   - A per-goroutine pool of idle scopes keyed by pool name, with
//     bounded retention: at most 10 idle scopes per pool key, at most
//     10 reuses per scope, and immediate destruction of scopes that
//     carry an error or ran out of memory.
//   - Orphan detection: clearing a pool while a scope is checked out
//     marks that scope as orphaned, and it is destroyed instead of
//     pooled when returned, since authentication state may have changed
//     underneath it.
//   - A version-stamped synchronization protocol that mirrors a shared
//     repository of stored functions into each scope, skipping the
//     repository round trip entirely when nothing changed.
//   - A per-scope compiled-function cache keyed by normalized source
//     text, so identical snippets compile once per scope lifetime.
//   - A recursive script file runner with shebang handling and a size
//     ceiling just below 2^32 bytes.
//
// # Typical usage
//
//	scripting.RegisterEngine(myengine.New)
//	if err := scripting.Setup(); err != nil {
//	    log.Fatal(err)
//	}
//
//	s, err := scripting.GetPooledScope(ctx, "app", "mapreduce")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	fn, err := s.CreateFunction("function() { return this.x; }")
//
// Worker goroutines own their pools for their own lifetime and must
// call ThreadDone before exiting. Releasing a PooledScope from a
// goroutine that never owned a pool destroys the scope directly; this
// is a designed escape valve for cross-goroutine cancellation, not an
// error path.
package scripting
