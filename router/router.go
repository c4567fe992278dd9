// Package router implements the route-matching and dispatch engine of the
// macro layer: an ordered table of compiled path patterns and HTTP methods,
// typed path-variable casting, handler invocation, and response serialization
// onto the gateway convention.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/externref/macro/errors"
	"github.com/externref/macro/gateway"
	"github.com/externref/macro/message"
	"github.com/externref/macro/metric"
)

// Handler processes one matched request and returns the response to
// serialize. Errors escaping a handler are not absorbed by the router; they
// propagate to the hosting gateway unmodified.
type Handler func(ctx context.Context, req *message.Request, params Params) (*message.Response, error)

// validMethods is the set of HTTP methods accepted at registration
var validMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"DELETE": true,
	"PATCH":  true,
}

// paramName matches a {name} placeholder in a path template
var paramName = regexp.MustCompile(`\{([^/{}]+)\}`)

// groupName restricts placeholder names to valid capture group identifiers
var groupName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// route is one compiled path pattern with its per-method handlers
type route struct {
	template string
	pattern  *regexp.Regexp
	names    []string
	types    map[string]ParamType
	handlers map[string]Handler
}

// Router owns the route table and dispatches incoming connections. The table
// is populated during the registration phase and treated as read-only once
// Dispatch is first called; concurrent dispatches need no locking because no
// writes occur after registration completes.
type Router struct {
	logger  *slog.Logger
	metrics *metric.Metrics

	routes []*route
	byPatt map[string]*route
}

// Option customizes a Router
type Option func(*Router)

// WithLogger sets the structured logger used for dispatch logging
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Router) { rt.logger = logger }
}

// WithMetrics enables Prometheus instrumentation of dispatches
func WithMetrics(metrics *metric.Metrics) Option {
	return func(rt *Router) { rt.metrics = metrics }
}

// New creates an empty Router
func New(opts ...Option) *Router {
	rt := &Router{
		byPatt: make(map[string]*route),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.logger == nil {
		rt.logger = slog.Default()
	}
	return rt
}

// RegisterOption customizes one route registration
type RegisterOption func(*registration)

type registration struct {
	types map[string]ParamType
}

// WithParamTypes declares the target types of path variables for a route.
// Variables not named here stay strings. Declarations referencing a variable
// absent from the template are rejected at registration.
func WithParamTypes(types map[string]ParamType) RegisterOption {
	return func(r *registration) { r.types = types }
}

// Register compiles a path template and stores the handler under the
// resulting (pattern, method) pair. Each {name} placeholder becomes one named
// capture group matching [^/]+; literal characters match exactly. Registering
// the same (pattern, method) pair again silently overwrites the prior
// handler. Routes are matched in first-registration order at dispatch time.
func (rt *Router) Register(template, method string, handler Handler, opts ...RegisterOption) error {
	if handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Router", "Register",
			"handler cannot be nil")
	}
	if !validMethods[method] {
		return errors.WrapInvalid(errors.ErrInvalidMethod, "Router", "Register",
			fmt.Sprintf("invalid HTTP method: %s", method))
	}
	if !strings.HasPrefix(template, "/") {
		return errors.WrapInvalid(errors.ErrInvalidTemplate, "Router", "Register",
			fmt.Sprintf("template %q must start with /", template))
	}

	var reg registration
	for _, opt := range opts {
		opt(&reg)
	}

	pattern, names, err := compileTemplate(template)
	if err != nil {
		return err
	}

	types := make(map[string]ParamType, len(reg.types))
	for name, pt := range reg.types {
		if pt < ParamString || pt > ParamBool {
			return errors.WrapInvalid(errors.ErrInvalidParamType, "Router", "Register",
				fmt.Sprintf("unknown type for parameter %q", name))
		}
		found := false
		for _, captured := range names {
			if captured == name {
				found = true
				break
			}
		}
		if !found {
			return errors.WrapInvalid(errors.ErrInvalidTemplate, "Router", "Register",
				fmt.Sprintf("declared parameter %q not present in template %q", name, template))
		}
		types[name] = pt
	}

	entry, ok := rt.byPatt[pattern.String()]
	if !ok {
		entry = &route{
			template: template,
			pattern:  pattern,
			names:    names,
			types:    types,
			handlers: make(map[string]Handler),
		}
		rt.byPatt[pattern.String()] = entry
		rt.routes = append(rt.routes, entry)
	} else {
		// later registrations on the same pattern may refine the declarations
		for name, pt := range types {
			entry.types[name] = pt
		}
	}
	entry.handlers[method] = handler

	return nil
}

// Get registers a GET route
func (rt *Router) Get(template string, handler Handler, opts ...RegisterOption) error {
	return rt.Register(template, "GET", handler, opts...)
}

// Post registers a POST route
func (rt *Router) Post(template string, handler Handler, opts ...RegisterOption) error {
	return rt.Register(template, "POST", handler, opts...)
}

// Put registers a PUT route
func (rt *Router) Put(template string, handler Handler, opts ...RegisterOption) error {
	return rt.Register(template, "PUT", handler, opts...)
}

// Delete registers a DELETE route
func (rt *Router) Delete(template string, handler Handler, opts ...RegisterOption) error {
	return rt.Register(template, "DELETE", handler, opts...)
}

// Templates returns the registered path templates in registration order
func (rt *Router) Templates() []string {
	templates := make([]string, len(rt.routes))
	for i, entry := range rt.routes {
		templates[i] = entry.template
	}
	return templates
}

// compileTemplate turns a path template into a full-match pattern with one
// named capture group per {name} placeholder
func compileTemplate(template string) (*regexp.Regexp, []string, error) {
	var b strings.Builder
	var names []string
	seen := make(map[string]bool)

	b.WriteString("^")
	last := 0
	for _, loc := range paramName.FindAllStringSubmatchIndex(template, -1) {
		b.WriteString(regexp.QuoteMeta(template[last:loc[0]]))

		name := template[loc[2]:loc[3]]
		if !groupName.MatchString(name) {
			return nil, nil, errors.WrapInvalid(errors.ErrInvalidTemplate, "Router", "compileTemplate",
				fmt.Sprintf("invalid placeholder name %q", name))
		}
		if seen[name] {
			return nil, nil, errors.WrapInvalid(errors.ErrInvalidTemplate, "Router", "compileTemplate",
				fmt.Sprintf("duplicate placeholder %q", name))
		}
		seen[name] = true
		names = append(names, name)

		b.WriteString("(?P<")
		b.WriteString(name)
		b.WriteString(">[^/]+)")
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(template[last:]))
	b.WriteString("$")

	pattern, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, errors.WrapInvalid(err, "Router", "compileTemplate",
			fmt.Sprintf("template %q", template))
	}

	return pattern, names, nil
}

// Dispatch is the top-level entry for one connection: parse headers and
// accumulate the body, match the route table, cast path variables, invoke
// the handler, and serialize its response. Route misses and non-HTTP scopes
// become 404 and 400 responses; transport and handler errors propagate to
// the caller.
func (rt *Router) Dispatch(ctx context.Context, scope gateway.Scope, receive gateway.ReceiveFunc, send gateway.SendFunc) error {
	if scope.Type != gateway.ScopeHTTP {
		if rt.metrics != nil {
			rt.metrics.UnsupportedScope.Inc()
		}
		rt.logger.Debug("rejected non-HTTP scope", "scope_type", scope.Type)

		resp := message.NewResponse(400, []byte("Only HTTP requests are supported"))
		resp.SetContentType("text/plain")
		return resp.Send(ctx, send)
	}

	started := time.Now()

	body, err := accumulateBody(ctx, receive)
	if err != nil {
		return errors.WrapTransient(err, "Router", "Dispatch", "body read")
	}

	req := message.RequestFromScope(scope, body)
	requestID := req.Header().Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	path := req.PathWithoutQuery()
	method := req.Method()
	logger := rt.logger.With("request_id", requestID, "method", method, "path", path)

	resp, err := rt.resolve(ctx, logger, req, path, method)
	if err != nil {
		// handler failure: propagates to the hosting gateway unmodified
		logger.Error("handler failed", "error", err)
		return err
	}

	sendErr := resp.Send(ctx, send)

	if rt.metrics != nil {
		rt.metrics.ObserveRequest(method, resp.Status, time.Since(started))
	}
	logger.Debug("dispatch complete", "status", resp.Status, "duration", time.Since(started))

	return sendErr
}

// resolve walks the route table and produces the response for one request
func (rt *Router) resolve(ctx context.Context, logger *slog.Logger, req *message.Request, path, method string) (*message.Response, error) {
	entry, raw := rt.findRoute(path, method)
	if entry == nil {
		if rt.metrics != nil {
			rt.metrics.RouteNotFound.Inc()
		}
		logger.Debug("no route matched")
		return notFound(), nil
	}

	params, castErr := entry.castParams(raw)
	if castErr != nil {
		// a failed cast is indistinguishable from no match on the wire
		if rt.metrics != nil {
			rt.metrics.CastFailures.Inc()
			rt.metrics.RouteNotFound.Inc()
		}
		logger.Debug("path variable cast failed", "template", entry.template, "error", castErr)
		return notFound(), nil
	}

	logger.Debug("route matched", "template", entry.template)
	return entry.handlers[method](ctx, req, params)
}

// findRoute walks the table in registration order and returns the first
// route whose pattern full-matches the path and whose method set contains
// the incoming method, along with the raw captured variables
func (rt *Router) findRoute(path, method string) (*route, map[string]string) {
	for _, entry := range rt.routes {
		match := entry.pattern.FindStringSubmatch(path)
		if match == nil {
			continue
		}
		if _, ok := entry.handlers[method]; !ok {
			continue
		}

		raw := make(map[string]string, len(entry.names))
		for i, name := range entry.pattern.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			raw[name] = match[i]
		}
		return entry, raw
	}
	return nil, nil
}

// castParams applies the route's declared types to the captured variables
func (r *route) castParams(raw map[string]string) (Params, error) {
	params := make(Params, len(raw))
	for name, value := range raw {
		pt, declared := r.types[name]
		if !declared {
			params[name] = value
			continue
		}
		cast, err := pt.cast(value)
		if err != nil {
			return nil, err
		}
		params[name] = cast
	}
	return params, nil
}

// accumulateBody pulls body chunks from the transport until it signals no
// more data. There is no maximum-size enforcement.
func accumulateBody(ctx context.Context, receive gateway.ReceiveFunc) ([]byte, error) {
	if receive == nil {
		return nil, nil
	}

	var body []byte
	for {
		msg, err := receive(ctx)
		if err != nil {
			return nil, err
		}
		body = append(body, msg.Body...)
		if !msg.More {
			return body, nil
		}
	}
}

func notFound() *message.Response {
	return message.NewResponse(404, []byte("Not Found"))
}
