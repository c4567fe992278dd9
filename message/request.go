package message

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/externref/macro/errors"
	"github.com/externref/macro/gateway"
)

// Request wraps parsed headers and accumulated body bytes for one incoming
// call. Query-string and body decoding are lazy and memoized; the header and
// body themselves are never mutated after construction.
type Request struct {
	header *RequestHeader
	body   []byte

	parsedQuery map[string]any
	parsedBody  any
	bodyParsed  bool
}

// NewRequest creates a Request from an already-built header and body
func NewRequest(header *RequestHeader, body []byte) *Request {
	if header == nil {
		header = NewRequestHeader()
	}
	return &Request{header: header, body: body}
}

// RequestFromScope creates a Request from a gateway scope and accumulated body
func RequestFromScope(scope gateway.Scope, body []byte) *Request {
	return NewRequest(HeaderFromScope(scope), body)
}

// RequestFromRaw creates a Request from raw header bytes and accumulated body
func RequestFromRaw(headerData, body []byte) *Request {
	return NewRequest(HeaderFromRaw(headerData), body)
}

// Header returns the parsed request header
func (r *Request) Header() *RequestHeader {
	return r.header
}

// Method returns the HTTP method
func (r *Request) Method() string {
	return r.header.Method()
}

// Path returns the request target, including any raw query string
func (r *Request) Path() string {
	return r.header.Path()
}

// HTTPVersion returns the HTTP version
func (r *Request) HTTPVersion() string {
	return r.header.HTTPVersion()
}

// ContentType returns the Content-Type header value
func (r *Request) ContentType() string {
	return r.header.ContentType()
}

// ContentLength returns the Content-Length header as an integer, or -1
func (r *Request) ContentLength() int {
	return r.header.ContentLength()
}

// Host returns the Host header value
func (r *Request) Host() string {
	return r.header.Host()
}

// IsJSON reports whether the request carries a JSON body
func (r *Request) IsJSON() bool {
	return r.header.IsJSON()
}

// IsFormData reports whether the request carries a URL-encoded form body
func (r *Request) IsFormData() bool {
	return r.header.IsFormData()
}

// QueryString returns the raw query string, or "" when the path has none
func (r *Request) QueryString() string {
	_, query, found := strings.Cut(r.Path(), "?")
	if !found {
		return ""
	}
	return query
}

// PathWithoutQuery returns the request path with the query string stripped
func (r *Request) PathWithoutQuery() string {
	path, _, _ := strings.Cut(r.Path(), "?")
	return path
}

// Query returns the parsed query parameters. Keys with a single value map to
// a string; keys with multiple values map to a []string. The result is
// computed once and cached.
func (r *Request) Query() map[string]any {
	if r.parsedQuery == nil {
		r.parsedQuery = collapseValues(parseQueryString(r.QueryString()))
	}
	return r.parsedQuery
}

// JSON decodes the request body as JSON. The decoded value is cached; an
// empty body decodes to nil without error. Calling JSON on a request whose
// Content-Type is not application/json fails with ErrContentTypeMismatch.
func (r *Request) JSON(_ context.Context) (any, error) {
	if !r.IsJSON() {
		return nil, errors.WrapInvalid(errors.ErrContentTypeMismatch, "Request", "JSON",
			"content type is not application/json")
	}

	if !r.bodyParsed {
		if len(r.body) == 0 {
			return nil, nil
		}
		var decoded any
		if err := json.Unmarshal(r.body, &decoded); err != nil {
			return nil, errors.WrapInvalid(err, "Request", "JSON", "body decode")
		}
		r.parsedBody = decoded
		r.bodyParsed = true
	}

	return r.parsedBody, nil
}

// Form decodes the request body as URL-encoded form data with the same
// collapse semantics as Query. The decoded map is cached; an empty body
// decodes to an empty map. Calling Form on a request whose Content-Type is
// not application/x-www-form-urlencoded fails with ErrContentTypeMismatch.
func (r *Request) Form(_ context.Context) (map[string]any, error) {
	if !r.IsFormData() {
		return nil, errors.WrapInvalid(errors.ErrContentTypeMismatch, "Request", "Form",
			"content type is not application/x-www-form-urlencoded")
	}

	if !r.bodyParsed {
		if len(r.body) == 0 {
			return map[string]any{}, nil
		}
		r.parsedBody = collapseValues(parseQueryString(string(r.body)))
		r.bodyParsed = true
	}

	form, ok := r.parsedBody.(map[string]any)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "Request", "Form",
			"body was already decoded as JSON")
	}
	return form, nil
}

// Text returns the request body as text with invalid UTF-8 replaced
func (r *Request) Text() string {
	return strings.ToValidUTF8(string(r.body), "�")
}

// Raw returns the raw request body
func (r *Request) Raw() []byte {
	return r.body
}

// String renders the request for debugging
func (r *Request) String() string {
	parts := []string{r.header.String()}
	if len(r.body) > 0 {
		parts = append(parts, "", r.Text())
	}
	return strings.Join(parts, "\n")
}

// parseQueryString parses a raw query string, keeping whatever pairs were
// decodable when the input is partially malformed
func parseQueryString(query string) url.Values {
	if query == "" {
		return url.Values{}
	}
	// ParseQuery returns the pairs it could decode alongside any error
	values, err := url.ParseQuery(query)
	if err != nil && values == nil {
		return url.Values{}
	}
	return values
}

// collapseValues flattens single-element value lists to scalar strings
func collapseValues(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for key, list := range values {
		if len(list) == 1 {
			out[key] = list[0]
		} else {
			out[key] = list
		}
	}
	return out
}
