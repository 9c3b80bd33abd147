// Package worker implements the offline cache manager: a single versioned
// cache bucket populated from a fixed manifest at install time, pruned of
// stale version buckets at activation, and consulted cache-first on every
// intercepted GET. The lifecycle is an explicit state machine (installing →
// installed → activating → active) with a static event-dispatch table, so the
// whole flow is unit-testable against the injected storage, fetcher, clients
// and notifier ports without a real host environment.
package worker
