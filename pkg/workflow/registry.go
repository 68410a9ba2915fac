package workflow

import (
	"context"
	"log/slog"
	"sync"
)

// Attachment is the (workflow, current state) reference a workflow-attached
// entity carries. Both fields are empty until the entity is attached.
type Attachment struct {
	WorkflowID string `json:"workflow_id"`
	StateID    string `json:"state_id"`
}

// EntityRef addresses one workflow-attached entity instance.
type EntityRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Accessor loads and mutates the workflow attachment of one entity kind. The
// executor never touches entity rows directly; accessors are the registry's
// bridge into each owning domain model.
type Accessor interface {
	// Load returns the entity's attachment. An entity that exists but was
	// never attached returns an empty Attachment and no error.
	Load(ctx context.Context, id string) (Attachment, error)

	// SwapState moves the entity from one state to another only if it is
	// still in fromStateID, so two concurrent transitions can never both
	// succeed from the same stale source state.
	SwapState(ctx context.Context, id, fromStateID, toStateID string) (bool, error)
}

// Registry maps entity kinds to their accessors. It is constructed once at
// process start and passed by reference to consumers. Register is idempotent:
// re-registering a kind is a no-op, so multiple initialization calls are
// tolerated.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	accessors map[string]Accessor
}

// NewRegistry creates an empty entity-kind registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		accessors: make(map[string]Accessor),
	}
}

// Register binds an accessor to an entity kind. A duplicate registration is
// ignored.
func (r *Registry) Register(kind string, accessor Accessor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accessors[kind]; exists {
		r.logger.Debug("entity kind already registered", "kind", kind)

		return
	}

	r.accessors[kind] = accessor
}

// Accessor returns the accessor registered for the kind.
func (r *Registry) Accessor(kind string) (Accessor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accessor, exists := r.accessors[kind]
	if !exists {
		return nil, ErrKindNotRegistered
	}

	return accessor, nil
}

// Kinds returns the registered entity kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.accessors))
	for kind := range r.accessors {
		kinds = append(kinds, kind)
	}

	return kinds
}
