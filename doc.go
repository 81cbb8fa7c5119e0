// Package scriptpool embeds a swappable scripting runtime inside a
// long-lived server process and manages the lifecycle, reuse, and
// consistency of the per-worker execution scopes that run user-supplied
// script code against live data.
//
// The hard problem here is not script evaluation, which is delegated to
// an external engine behind the scripting.Scope interface. It is the
// resource management around it:
//
//  1. Bounded pooling: each worker goroutine keeps a pool of idle
//     scopes per logical pool name, retaining at most 10 and retiring
//     any scope after 10 uses, on error, or on memory exhaustion.
//
//  2. Orphan detection: if a pool is invalidated while one of its
//     scopes is checked out, the scope is destroyed on return instead
//     of being reused with possibly stale authentication state.
//
//  3. Stored-function synchronization: a process-wide version counter
//     gates reloads of the shared MongoDB-backed function repository,
//     so a scope resynchronizes only when something actually changed.
//
//  4. Compile caching: identical normalized source compiles once per
//     scope lifetime.
//
// # Layout
//
//   - pkg/scripting: the pooling, synchronization, and caching core
//   - pkg/store: MongoDB stored-function repository
//   - pkg/config, pkg/logger, pkg/errors, pkg/metrics: supporting infrastructure
//   - cmd/scriptpool: CLI for executing script files through a pooled scope
package scriptpool
