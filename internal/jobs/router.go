package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsforge/tenantcore/internal/queue"
)

// ErrUnknownType marks a job whose type has no registered handler. It is
// fatal and never retried: a typo'd or retired operation type should fail
// fast, not sit in the retry cycle.
var ErrUnknownType = errors.New("unknown operation type")

// HandlerFunc executes one job and returns a structured result. Handlers
// never touch status records; the worker is the single writer of status
// transitions.
type HandlerFunc func(ctx context.Context, job *queue.Job) (map[string]interface{}, error)

// Router is a fixed dispatch table from operation type to handler. It is
// populated once at composition time and read-only afterwards.
type Router struct {
	handlers map[string]HandlerFunc
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

func (r *Router) Register(opType string, h HandlerFunc) {
	r.handlers[opType] = h
}

func (r *Router) Dispatch(ctx context.Context, job *queue.Job) (map[string]interface{}, error) {
	h, ok := r.handlers[job.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, job.Type)
	}
	return h(ctx, job)
}

// Types returns the registered operation types, for diagnostics.
func (r *Router) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
