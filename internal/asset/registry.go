package asset

import (
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// Registry accumulates resource and datum documents until they are drained.
//
// A Registry belongs to one device or acquisition session. Register* may be
// called from capture workers while Drain runs on the control goroutine; a
// single mutex serialises both.
type Registry struct {
	mu      sync.Mutex
	pending []Document

	// next holds the next datum sequence number for every resource ever
	// registered here. It is not cleared by Drain.
	next map[string]uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{next: make(map[string]uint64)}
}

// RegisterResource creates a resource with a fresh UUID and queues it.
func (r *Registry) RegisterResource(spec Spec, root, resourcePath string, kwargs map[string]string) Resource {
	res := Resource{
		ID:           uuid.NewString(),
		Spec:         spec,
		Root:         root,
		ResourcePath: resourcePath,
		Kwargs:       cloneOrEmpty(kwargs),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.next[res.ID] = 0
	queued := res
	queued.Kwargs = maps.Clone(res.Kwargs)
	r.pending = append(r.pending, Document{Kind: KindResource, Resource: &queued})
	return res
}

// RegisterDatum creates the next datum of res and queues it. The datum id is
// "<resource id>/<sequence>", with sequences counting from 0 per resource.
func (r *Registry) RegisterDatum(res Resource, kwargs map[string]any) (Datum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq, ok := r.next[res.ID]
	if !ok {
		return Datum{}, fmt.Errorf("%w: %s", ErrUnknownResource, res.ID)
	}
	r.next[res.ID] = seq + 1

	d := Datum{
		ID:         fmt.Sprintf("%s/%d", res.ID, seq),
		ResourceID: res.ID,
		Kwargs:     maps.Clone(kwargs),
	}
	if d.Kwargs == nil {
		d.Kwargs = map[string]any{}
	}
	queued := d
	queued.Kwargs = maps.Clone(d.Kwargs)
	r.pending = append(r.pending, Document{Kind: KindDatum, Datum: &queued})
	return d, nil
}

// Drain returns all pending documents in registration order and empties the
// queue. A second Drain without new registrations returns nothing.
func (r *Registry) Drain() []Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := r.pending
	r.pending = nil
	return docs
}

func cloneOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
