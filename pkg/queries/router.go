// Package queries serves the read side: typed selectors over the
// denormalised read models, dispatched by query type name. Queries never
// touch the write path; they read committed state only.
package queries

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plaenen/commercecore/pkg/domain"
)

// Request is one query: a type name and its type-specific parameters.
type Request struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the uniform query result envelope: exactly one of OK or Err
// is set.
type Response struct {
	OK  any        `json:"ok,omitempty"`
	Err *ErrorBody `json:"err,omitempty"`
}

// ErrorBody carries the error taxonomy kind and a human-readable message.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type handler func(ctx context.Context, params json.RawMessage) (any, error)

// Router dispatches query requests to their selectors.
type Router struct {
	handlers map[string]handler
}

func (r *Router) register(queryType string, h handler) {
	if _, exists := r.handlers[queryType]; exists {
		panic(fmt.Sprintf("query handler already registered for %q", queryType))
	}
	r.handlers[queryType] = h
}

// Types returns the registered query type names.
func (r *Router) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Execute runs one query and always returns an envelope; errors are mapped
// to the taxonomy rather than propagated.
func (r *Router) Execute(ctx context.Context, req Request) Response {
	h, ok := r.handlers[req.Type]
	if !ok {
		return errorResponse(fmt.Errorf("query type %q: %w", req.Type, domain.ErrUnknownQueryType))
	}
	result, err := h(ctx, req.Params)
	if err != nil {
		return errorResponse(err)
	}
	return Response{OK: result}
}

func errorResponse(err error) Response {
	return Response{Err: &ErrorBody{
		Kind:    string(domain.KindOf(err)),
		Message: err.Error(),
	}}
}

func decodeParams[T any](params json.RawMessage) (T, error) {
	var p T
	if len(params) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return p, fmt.Errorf("invalid query parameters: %v: %w", err, domain.ErrValidation)
	}
	return p, nil
}
