package credentials

import (
	"context"
	"sync"
)

// Guard owns the process-wide credential set.
//
// The in-memory copy is loaded from the Store on first use and every change
// goes through Update, which holds the lock across read, modify and persist.
// Callers only ever receive copies.
type Guard struct {
	mu      sync.Mutex
	store   Store
	current *Credentials
	loaded  bool
}

// NewGuard creates a Guard backed by store.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// ensureLoaded must be called with mu held.
func (g *Guard) ensureLoaded(ctx context.Context) error {
	if g.loaded {
		return nil
	}
	creds, err := g.store.Load(ctx)
	if err != nil {
		return err
	}
	g.current = creds
	g.loaded = true
	return nil
}

// Load reads the persisted credentials into memory. It is optional; the
// first Current or Update call loads lazily.
func (g *Guard) Load(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ensureLoaded(ctx)
}

// Current returns a copy of the credentials, or ErrNotAuthenticated when none exist.
func (g *Guard) Current(ctx context.Context) (*Credentials, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if g.current == nil {
		return nil, ErrNotAuthenticated
	}
	return g.current.Clone(), nil
}

// Authenticated reports whether credentials are held. Load errors count as false.
func (g *Guard) Authenticated(ctx context.Context) bool {
	_, err := g.Current(ctx)
	return err == nil
}

// UpdateFunc receives a copy of the current credentials (nil when none exist)
// and returns the replacement. Returning nil with a nil error leaves the
// credentials unchanged.
type UpdateFunc func(ctx context.Context, current *Credentials) (*Credentials, error)

// Update runs fn under the lock and persists its result before publishing it
// in memory. When fn or the Store fails nothing changes.
func (g *Guard) Update(ctx context.Context, fn UpdateFunc) (*Credentials, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	next, err := fn(ctx, g.current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return g.current.Clone(), nil
	}

	if err := g.store.Save(ctx, next); err != nil {
		return nil, err
	}
	g.current = next.Clone()
	return next.Clone(), nil
}

// Check verifies that the backing store is reachable.
func (g *Guard) Check(ctx context.Context) error {
	_, err := g.store.Load(ctx)
	return err
}
