// Package httpbridge adapts Go's net/http server machinery to the macro
// gateway convention, playing the role of the hosting gateway: it translates
// an *http.Request into a connection scope with a pull-based body reader and
// translates response events back onto the http.ResponseWriter.
package httpbridge

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/externref/macro/gateway"
	"github.com/externref/macro/router"
)

// bodyChunkSize is the read size for pulling request body chunks
const bodyChunkSize = 32 * 1024

// Bridge exposes a Router as an http.Handler
type Bridge struct {
	router *router.Router
	logger *slog.Logger
}

// Option customizes a Bridge
type Option func(*Bridge)

// WithLogger sets the logger used for dispatch failures
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// New creates a Bridge around a configured router
func New(rt *router.Router, opts ...Option) *Bridge {
	b := &Bridge{router: rt}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// ServeHTTP implements http.Handler by dispatching through the router.
// Dispatch errors (transport failures, handler errors) are logged; when
// nothing has been written yet they surface as a plain 500.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	scope := gateway.Scope{
		Type:        gateway.ScopeHTTP,
		Method:      r.Method,
		Path:        r.URL.RequestURI(),
		HTTPVersion: strings.TrimPrefix(r.Proto, "HTTP/"),
	}
	for name, values := range r.Header {
		for _, value := range values {
			scope.Headers = append(scope.Headers, gateway.HeaderPair{[]byte(name), []byte(value)})
		}
	}

	wroteHeader := false
	flusher, canFlush := w.(http.Flusher)

	send := func(_ context.Context, event gateway.ResponseEvent) error {
		switch event.Type {
		case gateway.EventResponseStart:
			for _, pair := range event.Headers {
				w.Header().Add(string(pair[0]), string(pair[1]))
			}
			w.WriteHeader(event.Status)
			wroteHeader = true
		case gateway.EventResponseBody:
			if len(event.Body) > 0 {
				if _, err := w.Write(event.Body); err != nil {
					return err
				}
			}
			if event.More && canFlush {
				flusher.Flush()
			}
		}
		return nil
	}

	if err := b.router.Dispatch(r.Context(), scope, receiveFromBody(r.Body), send); err != nil {
		b.logger.Error("dispatch failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if !wroteHeader {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// receiveFromBody pulls fixed-size chunks from the request body
func receiveFromBody(body io.Reader) gateway.ReceiveFunc {
	buf := make([]byte, bodyChunkSize)
	done := false
	return func(_ context.Context) (gateway.RequestMessage, error) {
		if done {
			return gateway.RequestMessage{}, nil
		}
		n, err := body.Read(buf)
		chunk := append([]byte(nil), buf[:n]...)
		if err == io.EOF {
			done = true
			return gateway.RequestMessage{Body: chunk}, nil
		}
		if err != nil {
			return gateway.RequestMessage{}, err
		}
		return gateway.RequestMessage{Body: chunk, More: true}, nil
	}
}
