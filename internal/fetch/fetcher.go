// Package fetch provides the per-screen state containers backing the data
// layer: each fetcher tracks {data, loading, error}, runs one fetch cycle
// per trigger, and guards commits with a per-instance sequence token so a
// stale in-flight response can never overwrite a newer one. A closed
// fetcher ignores late resolutions entirely.
package fetch

import (
	"context"
	"sync"

	"glassweather/internal/apperr"
)

// State is the uniform shape every fetcher exposes.
type State[T any] struct {
	Data    *T
	Loading bool
	Err     *apperr.Error
}

// LoadFunc performs the underlying client call for one fetch cycle.
type LoadFunc[T any] func(ctx context.Context) (*T, *apperr.Error)

// Fetcher is the generic fetch-state container. All state transitions go
// through begin/commit so the sequencing and liveness invariants hold for
// every concrete fetcher built on top of it.
type Fetcher[T any] struct {
	mu     sync.Mutex
	state  State[T]
	seq    uint64
	closed bool
	load   LoadFunc[T]
}

// NewFetcher creates a fetcher around the given load function.
func NewFetcher[T any](load LoadFunc[T]) *Fetcher[T] {
	return &Fetcher[T]{load: load}
}

// State returns a copy of the current state.
func (f *Fetcher[T]) State() State[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// ClearError drops the error field without touching data or loading.
func (f *Fetcher[T]) ClearError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Err = nil
}

// Close tears the fetcher down. In-flight fetches that resolve afterwards
// are discarded without mutating state.
func (f *Fetcher[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// Fetch runs one complete fetch cycle: mark loading, invoke the load
// function, and commit exactly once. Blocking; callers wanting async
// behaviour run it in a goroutine.
func (f *Fetcher[T]) Fetch(ctx context.Context) {
	token, ok := f.begin()
	if !ok {
		return
	}
	data, err := f.run(ctx)
	f.commit(token, data, err)
}

// run invokes load and converts a panic into the catch-all error so nothing
// escapes the fetch boundary.
func (f *Fetcher[T]) run(ctx context.Context) (data *T, appErr *apperr.Error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			appErr = apperr.Unexpected()
		}
	}()
	return f.load(ctx)
}

// begin issues a new sequence token and enters the loading state. Returns
// false when the fetcher is closed.
func (f *Fetcher[T]) begin() (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, false
	}
	f.seq++
	f.state.Loading = true
	f.state.Err = nil
	return f.seq, true
}

// commit applies a cycle's result if it is still the most recent cycle and
// the fetcher is alive. Reports whether the result was applied.
func (f *Fetcher[T]) commit(token uint64, data *T, err *apperr.Error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || token != f.seq {
		return false
	}
	f.state = State[T]{Data: data, Loading: false, Err: err}
	return true
}

// reset returns the fetcher to its idle zero state and invalidates any
// in-flight cycle.
func (f *Fetcher[T]) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.state = State[T]{}
}
