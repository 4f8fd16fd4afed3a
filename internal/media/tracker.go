package media

import (
	"fmt"
	"sync"

	"ykj/studio/internal/model"

	"github.com/hashicorp/go-multierror"
)

// Tracker owns a set of references on behalf of one workflow or chat
// session. Every reference it hands out is released exactly once, either
// explicitly or by ReleaseAll.
type Tracker struct {
	reg *Registry

	mu    sync.Mutex
	owned map[model.Ref]struct{}
}

func NewTracker(reg *Registry) *Tracker {
	return &Tracker{reg: reg, owned: map[model.Ref]struct{}{}}
}

func (t *Tracker) Registry() *Registry {
	return t.reg
}

func (t *Tracker) Acquire(data []byte, mimeType string) model.Ref {
	ref := t.reg.Create(data, mimeType)
	t.Adopt(ref)
	return ref
}

// Adopt takes ownership of a reference created elsewhere.
func (t *Tracker) Adopt(ref model.Ref) {
	t.mu.Lock()
	t.owned[ref] = struct{}{}
	t.mu.Unlock()
}

// Release revokes ref if the tracker owns it. Releasing an empty or
// foreign reference is a no-op.
func (t *Tracker) Release(ref model.Ref) error {
	if ref == "" {
		return nil
	}
	t.mu.Lock()
	_, ok := t.owned[ref]
	delete(t.owned, ref)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	if err := t.reg.Revoke(ref); err != nil {
		return fmt.Errorf("release %s: %w", ref, err)
	}
	return nil
}

func (t *Tracker) ReleaseAll() error {
	t.mu.Lock()
	refs := make([]model.Ref, 0, len(t.owned))
	for ref := range t.owned {
		refs = append(refs, ref)
	}
	t.owned = map[model.Ref]struct{}{}
	t.mu.Unlock()

	var result *multierror.Error
	for _, ref := range refs {
		if err := t.reg.Revoke(ref); err != nil {
			result = multierror.Append(result, fmt.Errorf("release %s: %w", ref, err))
		}
	}
	return result.ErrorOrNil()
}

// Owned is the number of references currently held.
func (t *Tracker) Owned() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.owned)
}
