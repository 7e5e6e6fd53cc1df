// Package handler provides JSON-RPC request handling infrastructure.
package handler

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/brianly1003/cquest/internal/rpc/message"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// ClientIDKey is the context key for the id of the client that sent a request.
const ClientIDKey ContextKey = "client_id"

// ClientID returns the client id stored in ctx, if any.
func ClientID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ClientIDKey).(string)
	return id, ok && id != ""
}

// WithClientID returns a copy of ctx carrying the client id.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, ClientIDKey, clientID)
}

// HandlerFunc is the signature for RPC method handlers. A nil result with a
// nil error is sent as an empty object.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, *message.Error)

// MiddlewareFunc is a function that wraps a HandlerFunc.
type MiddlewareFunc func(method string, next HandlerFunc) HandlerFunc

// Registry holds registered RPC methods and provides lookup functionality.
type Registry struct {
	mu         sync.RWMutex
	handlers   map[string]HandlerFunc
	meta       map[string]MethodMeta
	middleware []MiddlewareFunc
}

// NewRegistry creates a new method registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		meta:     make(map[string]MethodMeta),
	}
}

// Register registers a handler for a method, replacing any existing one.
func (r *Registry) Register(method string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = handler
}

// RegisterWithMeta registers a handler with OpenRPC metadata.
func (r *Registry) RegisterWithMeta(method string, handler HandlerFunc, meta MethodMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = handler
	r.meta[method] = meta
}

// GetMeta returns the metadata for a method, or a summary-only default.
func (r *Registry) GetMeta(method string) MethodMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if meta, ok := r.meta[method]; ok {
		return meta
	}
	return MethodMeta{Summary: method}
}

// Use adds middleware. Middleware added first runs outermost.
func (r *Registry) Use(mw MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
}

// Get returns the handler for a method wrapped in all middleware, or nil.
func (r *Registry) Get(method string) HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[method]
	if !ok {
		return nil
	}

	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](method, handler)
	}
	return handler
}

// Has returns true if a handler is registered for the method.
func (r *Registry) Has(method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[method]
	return ok
}

// Methods returns all registered method names in sorted order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	methods := make([]string, 0, len(r.handlers))
	for method := range r.handlers {
		methods = append(methods, method)
	}
	r.mu.RUnlock()

	sort.Strings(methods)
	return methods
}

// MethodService is implemented by services that register several methods.
type MethodService interface {
	RegisterMethods(r *Registry)
}

// RegisterService registers all methods from a MethodService.
func (r *Registry) RegisterService(svc MethodService) {
	svc.RegisterMethods(r)
}
