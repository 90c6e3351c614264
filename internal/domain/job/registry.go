package job

import (
	"errors"
	"slices"
	"sync"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// ErrInvalidHandler is returned when a handler is nil or reports an invalid job type.
var ErrInvalidHandler = errors.New("handler must be non-nil with a valid job type")

// Registry maps job types to handlers. The last registration for a type wins.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.JobType]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.JobType]Handler)}
}

// Register adds or replaces the handler for its job type.
func (r *Registry) Register(h Handler) error {
	if h == nil || !h.JobType().Valid() {
		return ErrInvalidHandler
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.JobType()] = h
	return nil
}

// MustRegister is Register for wiring code; it panics on an invalid handler.
func (r *Registry) MustRegister(handlers ...Handler) {
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the handler for jobType.
func (r *Registry) Lookup(jobType model.JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types, sorted.
func (r *Registry) Types() []model.JobType {
	r.mu.RLock()
	out := make([]model.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Defaults returns the handler config for jobType, or the zero config when none is registered.
func (r *Registry) Defaults(jobType model.JobType) model.HandlerConfig {
	h, ok := r.Lookup(jobType)
	if !ok {
		return model.HandlerConfig{}
	}
	return h.Config()
}
