// Package macro is a minimal HTTP request-dispatch layer over an
// asynchronous gateway convention.
//
// # Architecture
//
// The module is a library with four core packages and two adapters:
//
//   - gateway: the convention itself - a connection Scope in, a pull-based
//     body-chunk interface, and a push-based response-event sink
//   - message: RequestHeader, Request (lazy query/JSON/form decoding) and
//     Response (named constructors, cookies, send-once serialization)
//   - router: the route table - path templates with {name} placeholders
//     compiled at registration, typed path-variable casting, and the
//     Dispatch entry point
//   - config: YAML/JSON route-table files with schema validation
//   - pkg/httpbridge: hosts a router behind net/http
//   - cmd/macrod: a demo server binary
//
// # Dispatch Flow
//
// A host delivers a Scope plus receive/send functions; the router parses
// headers, accumulates the body, matches the path against the table in
// registration order, casts path variables to their declared types, invokes
// the handler, and serializes the returned Response back through the send
// function. Unmatched routes and failed casts produce a 404; non-HTTP scopes
// produce a fixed 400; handler errors propagate to the host unmodified.
//
// # Usage
//
//	rt := router.New()
//	_ = rt.Get("/items/{id}", getItem,
//		router.WithParamTypes(map[string]router.ParamType{"id": router.ParamInt}))
//	http.ListenAndServe(":8000", httpbridge.New(rt))
package macro
