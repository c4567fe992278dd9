package message

import (
	"strconv"
	"strings"

	"github.com/externref/macro/gateway"
)

// RequestHeader holds the parsed request line and a case-insensitive header
// map. Keys are stored lower-cased; duplicate insertion into the same key is
// last-write-wins.
type RequestHeader struct {
	method      string
	path        string
	httpVersion string
	headers     map[string]string
}

// NewRequestHeader creates an empty RequestHeader
func NewRequestHeader() *RequestHeader {
	return &RequestHeader{headers: make(map[string]string)}
}

// HeaderFromScope builds a RequestHeader from a gateway connection scope.
// Header names and values are decoded as Latin-1 text.
func HeaderFromScope(scope gateway.Scope) *RequestHeader {
	h := NewRequestHeader()
	h.method = scope.Method
	h.path = scope.Path

	version := scope.HTTPVersion
	if version == "" {
		version = "1.1"
	}
	h.httpVersion = "HTTP/" + version

	for _, pair := range scope.Headers {
		h.Set(decodeLatin1(pair[0]), decodeLatin1(pair[1]))
	}

	return h
}

// HeaderFromRaw builds a RequestHeader from raw header bytes as read off a
// persistent-connection transport. The first line must carry at least three
// space-separated tokens to fill method, path and version; shorter lines
// leave those fields empty. Subsequent lines split on the first colon with
// both sides trimmed; lines without a colon are skipped.
func HeaderFromRaw(data []byte) *RequestHeader {
	h := NewRequestHeader()
	lines := strings.Split(string(data), "\r\n")

	if len(lines) > 0 && strings.Contains(lines[0], " ") {
		parts := strings.Split(lines[0], " ")
		if len(parts) >= 3 {
			h.method = parts[0]
			h.path = parts[1]
			h.httpVersion = parts[2]
		}
	}

	for _, line := range lines[1:] {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		h.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	return h
}

// Method returns the HTTP method
func (h *RequestHeader) Method() string {
	return h.method
}

// Path returns the request target, including any raw query string
func (h *RequestHeader) Path() string {
	return h.path
}

// HTTPVersion returns the HTTP version (e.g. "HTTP/1.1")
func (h *RequestHeader) HTTPVersion() string {
	return h.httpVersion
}

// Set inserts a header value. The key is folded to lower case; setting the
// same key again overwrites the previous value.
func (h *RequestHeader) Set(key, value string) {
	h.headers[strings.ToLower(key)] = value
}

// Get returns the header value for a key, looked up case-insensitively.
// Missing keys return the empty string.
func (h *RequestHeader) Get(key string) string {
	return h.headers[strings.ToLower(key)]
}

// Has reports whether a header is present, looked up case-insensitively
func (h *RequestHeader) Has(key string) bool {
	_, ok := h.headers[strings.ToLower(key)]
	return ok
}

// Len returns the number of stored headers
func (h *RequestHeader) Len() int {
	return len(h.headers)
}

// ContentType returns the Content-Type header value
func (h *RequestHeader) ContentType() string {
	return h.Get("Content-Type")
}

// ContentLength returns the Content-Length header as an integer, or -1 when
// the header is absent or not a valid integer
func (h *RequestHeader) ContentLength() int {
	value := h.Get("Content-Length")
	if value == "" {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return -1
	}
	return n
}

// Host returns the Host header value
func (h *RequestHeader) Host() string {
	return h.Get("Host")
}

// IsJSON reports whether the request carries a JSON body
func (h *RequestHeader) IsJSON() bool {
	return mediaType(h.ContentType()) == "application/json"
}

// IsFormData reports whether the request carries a URL-encoded form body
func (h *RequestHeader) IsFormData() bool {
	return mediaType(h.ContentType()) == "application/x-www-form-urlencoded"
}

// String renders the header in wire form for debugging
func (h *RequestHeader) String() string {
	var b strings.Builder
	b.WriteString(h.method)
	b.WriteString(" ")
	b.WriteString(h.path)
	b.WriteString(" ")
	b.WriteString(h.httpVersion)
	for key, value := range h.headers {
		b.WriteString("\n")
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
	}
	return b.String()
}

// mediaType strips any ";"-delimited parameters from a Content-Type value
func mediaType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// decodeLatin1 interprets raw bytes as Latin-1 text (one byte per rune)
func decodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// encodeLatin1 converts text back to Latin-1 bytes; runes outside the
// Latin-1 range are replaced with '?'
func encodeLatin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			out = append(out, '?')
			continue
		}
		out = append(out, byte(r))
	}
	return out
}
