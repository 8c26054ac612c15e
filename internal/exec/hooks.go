package exec

import (
	"context"

	"github.com/parquedb/parquedb/pkg/document"
	"github.com/parquedb/parquedb/pkg/event"
)

// HookPoint names one stage of the mutation pipeline.
type HookPoint string

const (
	PreMutation  HookPoint = "preMutation"
	PreCreate    HookPoint = "preCreate"
	PreUpdate    HookPoint = "preUpdate"
	PreDelete    HookPoint = "preDelete"
	PostCreate   HookPoint = "postCreate"
	PostUpdate   HookPoint = "postUpdate"
	PostDelete   HookPoint = "postDelete"
	PostMutation HookPoint = "postMutation"
)

// HookContext is passed to every hook at every stage. Before/After are
// populated as they become available: both nil during preMutation on
// a create, Before populated and After nil during preUpdate/preDelete,
// After populated from postCreate/postUpdate onward (Before stays nil
// on a create).
type HookContext struct {
	Op        event.Op
	Namespace string
	LocalID   string
	Before    *document.Entity
	After     *document.Entity
	Input     any
}

// Hook observes or vetoes one pipeline stage. Returning an error
// aborts the operation: before the store is touched if returned from a
// pre-hook, after the commit is already visible if returned from a
// post-hook.
type Hook func(ctx context.Context, hc *HookContext) error

type hookRegistry struct {
	byPoint map[HookPoint][]Hook
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{byPoint: make(map[HookPoint][]Hook)}
}

func (r *hookRegistry) register(point HookPoint, h Hook) {
	r.byPoint[point] = append(r.byPoint[point], h)
}

// run executes every hook registered at point, in registration order,
// stopping at the first error.
func (r *hookRegistry) run(ctx context.Context, point HookPoint, hc *HookContext) error {
	for _, h := range r.byPoint[point] {
		if err := h(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}
