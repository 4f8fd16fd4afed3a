package media

import (
	"errors"
	"strings"
	"sync"

	"ykj/studio/internal/model"

	"github.com/google/uuid"
)

var ErrUnknownRef = errors.New("unknown media reference")

const refPrefix = "blob:"

type Blob struct {
	Data     []byte
	MimeType string
}

// Registry holds transient in-memory artifacts addressed by process-local
// references. References die with the process.
type Registry struct {
	mu       sync.RWMutex
	blobs    map[model.Ref]Blob
	created  int64
	released int64
}

func NewRegistry() *Registry {
	return &Registry{blobs: map[model.Ref]Blob{}}
}

func (r *Registry) Create(data []byte, mimeType string) model.Ref {
	ref := model.Ref(refPrefix + uuid.NewString())
	r.mu.Lock()
	r.blobs[ref] = Blob{Data: data, MimeType: mimeType}
	r.created++
	r.mu.Unlock()
	return ref
}

func (r *Registry) Open(ref model.Ref) (Blob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[ref]
	if !ok {
		return Blob{}, ErrUnknownRef
	}
	return b, nil
}

func (r *Registry) Revoke(ref model.Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[ref]; !ok {
		return ErrUnknownRef
	}
	delete(r.blobs, ref)
	r.released++
	return nil
}

// Len is the number of live references.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// Counts returns how many references were ever created and revoked.
func (r *Registry) Counts() (created, released int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.created, r.released
}

func IsRef(s string) bool {
	return strings.HasPrefix(s, refPrefix)
}
