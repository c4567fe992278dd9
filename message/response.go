package message

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/externref/macro/errors"
	"github.com/externref/macro/gateway"
)

// Response holds the status code, an insertion-ordered header map and the
// body for one outgoing reply. A Response serializes itself onto the gateway
// convention at most once; a second Send fails with ErrResponseSent.
type Response struct {
	Status int
	Body   []byte

	headerKeys   []string
	headerValues map[string]string

	chunks    []any
	streaming bool
	sent      bool
}

// NewResponse creates a bare response with the given status and body
func NewResponse(status int, body []byte) *Response {
	return &Response{
		Status:       status,
		Body:         body,
		headerValues: make(map[string]string),
	}
}

// Text creates a 200 plain-text response
func Text(text string) *Response {
	r := NewResponse(http.StatusOK, []byte(text))
	r.SetContentType("text/plain; charset=utf-8")
	return r
}

// HTML creates a 200 HTML response
func HTML(content string) *Response {
	r := NewResponse(http.StatusOK, []byte(content))
	r.SetContentType("text/html; charset=utf-8")
	return r
}

// JSON creates a 200 application/json response from the JSON serialization
// of data
func JSON(data any) (*Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Response", "JSON", "body encode")
	}
	r := NewResponse(http.StatusOK, body)
	r.SetContentType("application/json")
	return r, nil
}

// Redirect creates a 302 response pointing at location
func Redirect(location string) *Response {
	r := NewResponse(http.StatusFound, []byte("Redirecting to "+location))
	r.SetHeader("Location", location)
	return r
}

// Error creates a 500 plain-text response
func Error(message string) *Response {
	r := NewResponse(http.StatusInternalServerError, []byte(message))
	r.SetContentType("text/plain; charset=utf-8")
	return r
}

// Stream creates a 200 streaming response. Each chunk is emitted as its own
// wire event; chunks that are not []byte are formatted to text and UTF-8
// encoded. Content-Length is never set on a streaming response since the
// total length is unknown up front.
func Stream(chunks []any, contentType string) *Response {
	r := NewResponse(http.StatusOK, nil)
	r.chunks = chunks
	r.streaming = true
	if contentType != "" {
		r.SetContentType(contentType)
	}
	r.deleteHeader("Content-Length")
	return r
}

// WithStatus overrides the status code and returns the response for chaining
func (r *Response) WithStatus(status int) *Response {
	r.Status = status
	return r
}

// SetHeader sets a header value, overwriting any previous value under the
// same key while keeping the key's original insertion position
func (r *Response) SetHeader(key, value string) *Response {
	if _, ok := r.headerValues[key]; !ok {
		r.headerKeys = append(r.headerKeys, key)
	}
	r.headerValues[key] = value
	return r
}

// SetContentType sets the Content-Type header
func (r *Response) SetContentType(contentType string) *Response {
	return r.SetHeader("Content-Type", contentType)
}

// Header returns the current value under a key and whether it is set
func (r *Response) Header(key string) (string, bool) {
	value, ok := r.headerValues[key]
	return value, ok
}

// Sent reports whether the response has been serialized already
func (r *Response) Sent() bool {
	return r.sent
}

// Streaming reports whether the response body is emitted as chunks
func (r *Response) Streaming() bool {
	return r.streaming
}

func (r *Response) deleteHeader(key string) {
	if _, ok := r.headerValues[key]; !ok {
		return
	}
	delete(r.headerValues, key)
	for i, k := range r.headerKeys {
		if k == key {
			r.headerKeys = append(r.headerKeys[:i], r.headerKeys[i+1:]...)
			break
		}
	}
}

// CookieOption customizes a single Set-Cookie line
type CookieOption func(*cookie)

type cookie struct {
	maxAge   *int
	expires  string
	path     string
	domain   string
	secure   bool
	httpOnly bool
	sameSite string
}

// CookieMaxAge sets the Max-Age attribute in seconds
func CookieMaxAge(seconds int) CookieOption {
	return func(c *cookie) { c.maxAge = &seconds }
}

// CookieExpires sets the Expires attribute
func CookieExpires(expires string) CookieOption {
	return func(c *cookie) { c.expires = expires }
}

// CookiePath sets the Path attribute; an empty path omits the attribute
func CookiePath(path string) CookieOption {
	return func(c *cookie) { c.path = path }
}

// CookieDomain sets the Domain attribute
func CookieDomain(domain string) CookieOption {
	return func(c *cookie) { c.domain = domain }
}

// CookieSecure sets the Secure attribute
func CookieSecure() CookieOption {
	return func(c *cookie) { c.secure = true }
}

// CookieHTTPOnly sets the HttpOnly attribute
func CookieHTTPOnly() CookieOption {
	return func(c *cookie) { c.httpOnly = true }
}

// CookieSameSite sets the SameSite attribute
func CookieSameSite(mode string) CookieOption {
	return func(c *cookie) { c.sameSite = mode }
}

// SetCookie builds one Set-Cookie line for the response. Repeated calls on
// the same response accumulate as newline-joined values under the single
// Set-Cookie key; serialization splits them back into one wire header per
// cookie line.
func (r *Response) SetCookie(name, value string, opts ...CookieOption) *Response {
	c := cookie{path: "/"}
	for _, opt := range opts {
		opt(&c)
	}

	parts := []string{name + "=" + value}
	if c.maxAge != nil {
		parts = append(parts, "Max-Age="+strconv.Itoa(*c.maxAge))
	}
	if c.expires != "" {
		parts = append(parts, "Expires="+c.expires)
	}
	if c.path != "" {
		parts = append(parts, "Path="+c.path)
	}
	if c.domain != "" {
		parts = append(parts, "Domain="+c.domain)
	}
	if c.secure {
		parts = append(parts, "Secure")
	}
	if c.httpOnly {
		parts = append(parts, "HttpOnly")
	}
	if c.sameSite != "" {
		parts = append(parts, "SameSite="+c.sameSite)
	}

	line := strings.Join(parts, "; ")
	if existing, ok := r.headerValues["Set-Cookie"]; ok {
		return r.SetHeader("Set-Cookie", existing+"\n"+line)
	}
	return r.SetHeader("Set-Cookie", line)
}

// prepareHeaders finalizes the header list for the start event. Keys are
// lower-cased and Latin-1 encoded; Content-Length is filled from the body
// length unless already set, and never for streaming responses. The
// newline-merged Set-Cookie value expands to one pair per cookie line.
func (r *Response) prepareHeaders() []gateway.HeaderPair {
	hasContentLength := false
	for key := range r.headerValues {
		if strings.EqualFold(key, "Content-Length") {
			hasContentLength = true
			break
		}
	}

	pairs := make([]gateway.HeaderPair, 0, len(r.headerKeys)+1)
	for _, key := range r.headerKeys {
		value := r.headerValues[key]
		lower := strings.ToLower(key)
		if lower == "set-cookie" {
			for _, line := range strings.Split(value, "\n") {
				pairs = append(pairs, gateway.HeaderPair{encodeLatin1(lower), encodeLatin1(line)})
			}
			continue
		}
		pairs = append(pairs, gateway.HeaderPair{encodeLatin1(lower), encodeLatin1(value)})
	}

	if !hasContentLength && !r.streaming {
		pairs = append(pairs, gateway.HeaderPair{
			[]byte("content-length"),
			[]byte(strconv.Itoa(len(r.Body))),
		})
	}

	return pairs
}

// Send serializes the response onto the gateway convention: one start event
// carrying status and finalized headers, then the body events. A fixed-length
// response emits a single terminal body event; a streaming response emits one
// continuation event per chunk followed by an empty terminal event. Send may
// be called at most once per instance.
func (r *Response) Send(ctx context.Context, send gateway.SendFunc) error {
	if r.sent {
		return errors.WrapFatal(errors.ErrResponseSent, "Response", "Send", "serialize")
	}

	start := gateway.ResponseEvent{
		Type:    gateway.EventResponseStart,
		Status:  r.Status,
		Headers: r.prepareHeaders(),
	}
	if err := send(ctx, start); err != nil {
		return errors.WrapTransient(err, "Response", "Send", "start event")
	}

	if r.streaming {
		for _, chunk := range r.chunks {
			event := gateway.ResponseEvent{
				Type: gateway.EventResponseBody,
				Body: chunkBytes(chunk),
				More: true,
			}
			if err := send(ctx, event); err != nil {
				return errors.WrapTransient(err, "Response", "Send", "body chunk")
			}
		}
		terminal := gateway.ResponseEvent{Type: gateway.EventResponseBody}
		if err := send(ctx, terminal); err != nil {
			return errors.WrapTransient(err, "Response", "Send", "terminal event")
		}
	} else {
		event := gateway.ResponseEvent{
			Type: gateway.EventResponseBody,
			Body: r.Body,
		}
		if err := send(ctx, event); err != nil {
			return errors.WrapTransient(err, "Response", "Send", "body event")
		}
	}

	r.sent = true
	return nil
}

// chunkBytes coerces a streaming chunk to its wire bytes
func chunkBytes(chunk any) []byte {
	switch v := chunk.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(fmt.Sprint(v))
	}
}

// String renders the response in a readable wire-like form for debugging
func (r *Response) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s", r.Status, statusPhrase(r.Status))
	for _, key := range r.headerKeys {
		fmt.Fprintf(&b, "\n%s: %s", key, r.headerValues[key])
	}
	b.WriteString("\n\n")

	preview := r.Body
	if len(preview) > 100 {
		preview = preview[:100]
	}
	b.WriteString(strings.ToValidUTF8(string(preview), "�"))
	if len(r.Body) > 100 {
		b.WriteString("...")
	}
	return b.String()
}

func statusPhrase(status int) string {
	if phrase := http.StatusText(status); phrase != "" {
		return phrase
	}
	return "Unknown"
}
