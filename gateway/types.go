package gateway

import "context"

// Scope types understood by the dispatcher. Anything other than ScopeHTTP is
// rejected with a fixed 400 response.
const (
	// ScopeHTTP identifies an HTTP connection scope
	ScopeHTTP = "http"
)

// Event types emitted on the response side of the convention.
const (
	// EventResponseStart carries the status code and finalized header list
	EventResponseStart = "http.response.start"
	// EventResponseBody carries a body chunk and a continuation flag
	EventResponseBody = "http.response.body"
)

// HeaderPair is a single raw header as a (name, value) byte pair. Names and
// values are Latin-1 byte strings as delivered by the transport.
type HeaderPair [2][]byte

// Scope describes one inbound connection as delivered by the host.
type Scope struct {
	// Type is the connection kind (e.g. "http")
	Type string

	// Method is the HTTP method (e.g. "GET")
	Method string

	// Path is the request target, including any raw query string
	Path string

	// HTTPVersion is the protocol version without the "HTTP/" prefix
	// (e.g. "1.1"); empty defaults to "1.1"
	HTTPVersion string

	// Headers is the ordered raw header list
	Headers []HeaderPair
}

// RequestMessage is one pulled chunk of the request body. More reports
// whether further chunks follow.
type RequestMessage struct {
	Body []byte
	More bool
}

// ReceiveFunc pulls the next request body chunk from the transport. It blocks
// until a chunk is available or the context is done.
type ReceiveFunc func(ctx context.Context) (RequestMessage, error)

// ResponseEvent is one pushed event of the serialized response.
type ResponseEvent struct {
	// Type is EventResponseStart or EventResponseBody
	Type string

	// Status is the HTTP status code (start events only)
	Status int

	// Headers is the finalized header list with lower-cased keys
	// (start events only)
	Headers []HeaderPair

	// Body is the chunk payload (body events only)
	Body []byte

	// More reports whether further body events follow (body events only)
	More bool
}

// SendFunc pushes one response event to the transport. It blocks until the
// event is accepted or the context is done.
type SendFunc func(ctx context.Context, event ResponseEvent) error
