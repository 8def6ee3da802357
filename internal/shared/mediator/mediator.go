// Package mediator routes commands and queries to exactly one handler through
// an ordered pipeline of behaviors.
//
// Handlers and behaviors are registered on a Registry during startup. Build
// composes every pipeline once and returns an immutable Mediator that is safe
// for concurrent use. Dispatch does no reflection: a route is keyed by the
// request name, its kind and a zero-size tag of the result type.
package mediator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// Request is implemented by every command and query. Requests are value types;
// RequestName must not depend on field values.
type Request interface {
	RequestName() string
}

// TenantScoped is implemented by requests that act on a single tenant.
type TenantScoped interface {
	Tenant() string
}

type Kind string

const (
	KindCommand Kind = "command"
	KindQuery   Kind = "query"
)

type Handler[Req Request, Res any] interface {
	Handle(ctx context.Context, req Req) (Res, error)
}

type HandlerFunc[Req Request, Res any] func(ctx context.Context, req Req) (Res, error)

func (f HandlerFunc[Req, Res]) Handle(ctx context.Context, req Req) (Res, error) {
	return f(ctx, req)
}

// Next invokes the remainder of the pipeline. It may be called at most once.
type Next func(ctx context.Context) (any, error)

// Behavior wraps handler execution. The first registered behavior is outermost.
type Behavior func(ctx context.Context, req Request, next Next) (any, error)

// Route describes the handler a request is being dispatched to.
type Route struct {
	Name   string
	Kind   Kind
	Result string
}

type resultTag[Res any] struct{}

type routeKey struct {
	kind   Kind
	name   string
	result any
}

type route struct {
	key    routeKey
	info   Route
	origin string
	handle func(ctx context.Context, req Request) (any, error)
	chain  func(ctx context.Context, req Request) (any, error)
}

// Registry collects handlers and behaviors. It is not safe for concurrent use
// and is meant to be populated from a single goroutine at startup.
type Registry struct {
	routes map[routeKey]*route
	order  []routeKey
	global []Behavior
	scoped map[routeKey][]Behavior
}

func NewRegistry() *Registry {
	return &Registry{
		routes: make(map[routeKey]*route),
		scoped: make(map[routeKey][]Behavior),
	}
}

// Register binds h to (Req name, kind, Res). A second registration for the same
// triple is rejected with ErrDuplicateHandler naming the first call site.
func Register[Req Request, Res any](r *Registry, kind Kind, h Handler[Req, Res]) error {
	return register[Req, Res](r, kind, h, captureOrigin(2))
}

func RegisterCommand[Req Request, Res any](r *Registry, h Handler[Req, Res]) error {
	return register[Req, Res](r, KindCommand, h, captureOrigin(2))
}

func RegisterQuery[Req Request, Res any](r *Registry, h Handler[Req, Res]) error {
	return register[Req, Res](r, KindQuery, h, captureOrigin(2))
}

// MustRegister panics on registration errors.
func MustRegister[Req Request, Res any](r *Registry, kind Kind, h Handler[Req, Res]) {
	if err := register[Req, Res](r, kind, h, captureOrigin(2)); err != nil {
		panic(err)
	}
}

func register[Req Request, Res any](r *Registry, kind Kind, h Handler[Req, Res], origin string) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrConfiguration, kind)
	}
	var zero Req
	name := zero.RequestName()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: request name is required", ErrConfiguration)
	}
	key := keyFor[Res](kind, name)
	if existing, found := r.routes[key]; found {
		return fmt.Errorf("%w: %s %q returning %s (first at %s)",
			ErrDuplicateHandler, kind, name, existing.info.Result, existing.origin)
	}

	r.routes[key] = &route{
		key:    key,
		info:   Route{Name: name, Kind: kind, Result: resultName[Res]()},
		origin: origin,
		handle: func(ctx context.Context, req Request) (any, error) {
			typed, ok := req.(Req)
			if !ok {
				return nil, fmt.Errorf("%w: %s %q received %T", ErrConfiguration, kind, name, req)
			}
			return h.Handle(ctx, typed)
		},
	}
	r.order = append(r.order, key)
	return nil
}

// Use appends a behavior applied to every route.
func (r *Registry) Use(behaviors ...Behavior) {
	for _, b := range behaviors {
		if b != nil {
			r.global = append(r.global, b)
		}
	}
}

// UseFor appends a behavior applied only to the named route returning Res.
// Route-scoped behaviors run inside the global ones.
func UseFor[Res any](r *Registry, kind Kind, name string, behaviors ...Behavior) {
	key := keyFor[Res](kind, name)
	for _, b := range behaviors {
		if b != nil {
			r.scoped[key] = append(r.scoped[key], b)
		}
	}
}

// Build composes every pipeline and returns the immutable dispatcher. Later
// changes to the registry do not affect a built Mediator.
func (r *Registry) Build() *Mediator {
	m := &Mediator{
		routes: make(map[routeKey]*route, len(r.routes)),
		byName: make(map[string][]*route),
	}
	global := append([]Behavior(nil), r.global...)
	for _, key := range r.order {
		source := r.routes[key]
		behaviors := append(append([]Behavior(nil), global...), r.scoped[key]...)
		built := &route{
			key:    key,
			info:   source.info,
			origin: source.origin,
			handle: source.handle,
		}
		built.chain = compose(built.info, source.handle, behaviors)
		m.routes[key] = built
		m.byName[key.name] = append(m.byName[key.name], built)
		m.order = append(m.order, built)
	}
	return m
}

func compose(
	info Route,
	handle func(ctx context.Context, req Request) (any, error),
	behaviors []Behavior,
) func(ctx context.Context, req Request) (any, error) {
	current := handle
	for i := len(behaviors) - 1; i >= 0; i-- {
		behavior := behaviors[i]
		next := current
		current = func(ctx context.Context, req Request) (any, error) {
			var called atomic.Bool
			return behavior(ctx, req, func(nextCtx context.Context) (any, error) {
				if !called.CompareAndSwap(false, true) {
					return nil, fmt.Errorf("%w: %s %q", ErrNextCalledTwice, info.Kind, info.Name)
				}
				return next(nextCtx, req)
			})
		}
	}
	return func(ctx context.Context, req Request) (any, error) {
		return current(withRoute(ctx, info), req)
	}
}

// Mediator dispatches requests through prebuilt pipelines.
type Mediator struct {
	routes map[routeKey]*route
	byName map[string][]*route
	order  []*route
}

// Send dispatches a command to the handler registered for (cmd, Res).
func Send[Res any, Req Request](ctx context.Context, m *Mediator, cmd Req) (Res, error) {
	return dispatchTyped[Res](ctx, m, KindCommand, cmd)
}

// Query dispatches a query to the handler registered for (q, Res).
func Query[Res any, Req Request](ctx context.Context, m *Mediator, q Req) (Res, error) {
	return dispatchTyped[Res](ctx, m, KindQuery, q)
}

func dispatchTyped[Res any](ctx context.Context, m *Mediator, kind Kind, req Request) (Res, error) {
	var zero Res
	if m == nil || req == nil {
		return zero, fmt.Errorf("%w: %s", ErrNoHandler, kind)
	}
	name := req.RequestName()
	found, ok := m.routes[keyFor[Res](kind, name)]
	if !ok {
		return zero, fmt.Errorf("%w: %s %q returning %s", ErrNoHandler, kind, name, resultName[Res]())
	}
	out, err := found.chain(ctx, req)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	typed, ok := out.(Res)
	if !ok {
		return zero, fmt.Errorf("%w: %s %q produced %T", ErrResultType, kind, name, out)
	}
	return typed, nil
}

// Dispatch routes req by name alone, for callers that only hold a decoded
// Request such as broker consumers. Exactly one route must match the name.
func (m *Mediator) Dispatch(ctx context.Context, req Request) (any, error) {
	if m == nil || req == nil {
		return nil, ErrNoHandler
	}
	name := req.RequestName()
	candidates := m.byName[name]
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, name)
	case 1:
		return candidates[0].chain(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q has %d handlers", ErrAmbiguousHandler, name, len(candidates))
	}
}

// Has reports whether any handler is registered for name.
func (m *Mediator) Has(name string) bool {
	return m != nil && len(m.byName[name]) > 0
}

// Routes lists registered routes in registration order.
func (m *Mediator) Routes() []Route {
	if m == nil {
		return nil
	}
	out := make([]Route, 0, len(m.order))
	for _, item := range m.order {
		out = append(out, item.info)
	}
	return out
}

type routeContextKey struct{}

func withRoute(ctx context.Context, info Route) context.Context {
	return context.WithValue(ctx, routeContextKey{}, info)
}

// RouteFromContext returns the route being dispatched, if any.
func RouteFromContext(ctx context.Context) (Route, bool) {
	info, ok := ctx.Value(routeContextKey{}).(Route)
	return info, ok
}

func keyFor[Res any](kind Kind, name string) routeKey {
	return routeKey{kind: kind, name: name, result: resultTag[Res]{}}
}

func resultName[Res any]() string {
	return strings.TrimPrefix(fmt.Sprintf("%T", (*Res)(nil)), "*")
}
