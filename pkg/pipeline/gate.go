package pipeline

import "sync"

// ConcurrencyGate allows at most one active run per identity. An identity is
// whatever the caller uses to group requests, typically the requesting user
// or chat. The gate is in-process only.
type ConcurrencyGate struct {
	active sync.Map
}

func NewConcurrencyGate() *ConcurrencyGate {
	return &ConcurrencyGate{}
}

// TryAcquire atomically claims the identity. It returns false when a run for
// the identity is already active.
func (g *ConcurrencyGate) TryAcquire(identity string) bool {
	_, loaded := g.active.LoadOrStore(identity, struct{}{})

	return !loaded
}

// Release frees the identity. Releasing an identity that is not held is a
// no-op.
func (g *ConcurrencyGate) Release(identity string) {
	g.active.Delete(identity)
}

// Active returns the identities currently holding a slot.
func (g *ConcurrencyGate) Active() []string {
	var identities []string

	g.active.Range(func(key, _ any) bool {
		identities = append(identities, key.(string))

		return true
	})

	return identities
}
