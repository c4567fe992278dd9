// Package message provides the request and response types that flow through
// the macro dispatch layer.
//
// # Types
//
// 1. RequestHeader - parsed request-line fields plus a case-insensitive
// header map, built from a gateway.Scope or from raw header bytes
//
// 2. Request - immutable header and body with lazy, memoized query-string
// and body (JSON/form) decoding
//
// 3. Response - status, ordered headers and body with named constructors,
// a cookie builder, and a send-once serialization contract onto the
// gateway convention
//
// # Lifecycle
//
// A Request is constructed once per incoming call by the router and discarded
// after the handler returns. A Response is built by the handler (usually via
// a named constructor), optionally mutated through the chainable setters, and
// serialized exactly once with Send. Sending a Response twice is a
// programming error and fails with errors.ErrResponseSent.
package message
