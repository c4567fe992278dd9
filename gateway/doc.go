// Package gateway defines the asynchronous gateway convention through which
// an external host delivers connection data to the macro dispatcher and
// receives serialized responses.
//
// # Architecture
//
// A host (an HTTP server, a test harness, a persistent-connection transport)
// describes each connection with a Scope, hands the dispatcher a pull-based
// ReceiveFunc for request body chunks, and a push-based SendFunc for response
// events:
//
//	┌──────────────┐   Scope + ReceiveFunc    ┌──────────────┐
//	│   Host       │ ───────────────────────▶ │  Dispatcher  │
//	│  (server)    │ ◀─────────────────────── │   (router)   │
//	└──────────────┘      SendFunc events     └──────────────┘
//
// The dispatcher pulls body chunks until a RequestMessage reports More=false,
// then pushes exactly one EventResponseStart event followed by one or more
// EventResponseBody events.
//
// # Event Stream
//
// For a fixed-length response the event stream is:
//
//	{Type: EventResponseStart, Status: 200, Headers: [...]}
//	{Type: EventResponseBody, Body: payload, More: false}
//
// For a streaming response each chunk is its own body event with More=true,
// terminated by an empty body event with More=false.
//
// This package carries no dependencies and no behavior of its own; it exists
// so hosts and the dispatcher agree on shapes without importing each other.
package gateway
