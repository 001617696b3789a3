package preview

import (
	"sync"
	"time"

	"TableDetFront/monitor"

	"github.com/google/uuid"
)

// Handle is a short-lived URL under which one thumbnail can be fetched.
type Handle struct {
	ID  string
	URL string
}

type entry struct {
	data  []byte
	mime  string
	scope *Scope
	timer *time.Timer
}

// Registry owns every live display handle. Handles belong to a Scope and
// die with it; a timer after the first fetch is only a second bound.
type Registry struct {
	mu           sync.Mutex
	handles      map[string]*entry
	prefix       string
	releaseAfter time.Duration
}

func NewRegistry(prefix string, releaseAfter time.Duration) *Registry {
	return &Registry{
		handles:      make(map[string]*entry),
		prefix:       prefix,
		releaseAfter: releaseAfter,
	}
}

// Scope groups the handles acquired for one rendered view.
type Scope struct {
	reg    *Registry
	mu     sync.Mutex
	ids    map[string]struct{}
	closed bool
}

func (r *Registry) NewScope() *Scope {
	return &Scope{reg: r, ids: make(map[string]struct{})}
}

// Acquire registers data under a fresh handle. Acquiring on a closed scope
// returns an empty handle.
func (s *Scope) Acquire(data []byte, mime string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(data) == 0 {
		return Handle{}
	}
	id := uuid.NewString()
	s.reg.mu.Lock()
	s.reg.handles[id] = &entry{data: data, mime: mime, scope: s}
	monitor.PreviewHandles.Set(float64(len(s.reg.handles)))
	s.reg.mu.Unlock()
	s.ids[id] = struct{}{}
	return Handle{ID: id, URL: s.reg.prefix + id}
}

// Close releases every handle the scope still holds.
func (s *Scope) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	ids := s.ids
	s.ids = make(map[string]struct{})
	s.closed = true
	s.mu.Unlock()
	for id := range ids {
		s.reg.Release(id)
	}
}

// Len is the number of handles the scope holds.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Serve returns the bytes behind id. The first successful fetch arms the
// release timer.
func (r *Registry) Serve(id string) ([]byte, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.handles[id]
	if !ok {
		return nil, "", false
	}
	if e.timer == nil && r.releaseAfter > 0 {
		e.timer = time.AfterFunc(r.releaseAfter, func() { r.Release(id) })
	}
	return e.data, e.mime, true
}

// Release drops one handle. Releasing an unknown handle is a no-op.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	e, ok := r.handles[id]
	if ok {
		delete(r.handles, id)
		if e.timer != nil {
			e.timer.Stop()
		}
		monitor.PreviewHandles.Set(float64(len(r.handles)))
	}
	r.mu.Unlock()
	if ok && e.scope != nil {
		e.scope.forget(id)
	}
}

func (s *Scope) forget(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// Live is the number of handles currently held.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
