package message_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/externref/macro/errors"
	"github.com/externref/macro/gateway"
	"github.com/externref/macro/message"
)

// eventRecorder collects pushed response events for assertions
type eventRecorder struct {
	events []gateway.ResponseEvent
}

func (r *eventRecorder) send(_ context.Context, event gateway.ResponseEvent) error {
	r.events = append(r.events, event)
	return nil
}

func headerValue(t *testing.T, headers []gateway.HeaderPair, name string) (string, bool) {
	t.Helper()
	for _, pair := range headers {
		if string(pair[0]) == name {
			return string(pair[1]), true
		}
	}
	return "", false
}

func TestNamedConstructors(t *testing.T) {
	tests := []struct {
		name            string
		response        *message.Response
		wantStatus      int
		wantContentType string
		wantBody        string
	}{
		{"text", message.Text("Hello, world!"), 200, "text/plain; charset=utf-8", "Hello, world!"},
		{"html", message.HTML("<h1>Hi</h1>"), 200, "text/html; charset=utf-8", "<h1>Hi</h1>"},
		{"error", message.Error("boom"), 500, "text/plain; charset=utf-8", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.response.Status)
			contentType, ok := tt.response.Header("Content-Type")
			require.True(t, ok)
			assert.Equal(t, tt.wantContentType, contentType)
			assert.Equal(t, tt.wantBody, string(tt.response.Body))
		})
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	resp, err := message.JSON(map[string]any{"message": "hi"})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.Status)
	contentType, _ := resp.Header("Content-Type")
	assert.Equal(t, "application/json", contentType)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &decoded))
	assert.Equal(t, map[string]any{"message": "hi"}, decoded)
}

func TestJSON_EncodeFailure(t *testing.T) {
	_, err := message.JSON(make(chan int))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRedirect(t *testing.T) {
	resp := message.Redirect("/")

	assert.Equal(t, 302, resp.Status)
	location, ok := resp.Header("Location")
	require.True(t, ok)
	assert.Equal(t, "/", location)
	assert.Equal(t, "Redirecting to /", string(resp.Body))
}

func TestWithStatus(t *testing.T) {
	resp := message.Text("created").WithStatus(201)
	assert.Equal(t, 201, resp.Status)
}

func TestSetHeader_OverwritesInPlace(t *testing.T) {
	resp := message.Text("x")
	resp.SetHeader("X-Custom", "1").SetHeader("X-Custom", "2")

	value, ok := resp.Header("X-Custom")
	require.True(t, ok)
	assert.Equal(t, "2", value)
}

func TestSetCookie(t *testing.T) {
	resp := message.Text("x")
	resp.SetCookie("sid", "1", message.CookieMaxAge(60), message.CookieHTTPOnly())

	value, ok := resp.Header("Set-Cookie")
	require.True(t, ok)
	assert.Equal(t, "sid=1; Max-Age=60; Path=/; HttpOnly", value)
}

func TestSetCookie_AllAttributes(t *testing.T) {
	resp := message.Text("x")
	resp.SetCookie("sid", "abc",
		message.CookieMaxAge(0),
		message.CookieExpires("Wed, 21 Oct 2026 07:28:00 GMT"),
		message.CookiePath("/app"),
		message.CookieDomain("example.com"),
		message.CookieSecure(),
		message.CookieHTTPOnly(),
		message.CookieSameSite("Strict"),
	)

	value, _ := resp.Header("Set-Cookie")
	assert.Equal(t, "sid=abc; Max-Age=0; Expires=Wed, 21 Oct 2026 07:28:00 GMT; "+
		"Path=/app; Domain=example.com; Secure; HttpOnly; SameSite=Strict", value)
}

func TestSetCookie_Accumulates(t *testing.T) {
	resp := message.Text("x")
	resp.SetCookie("a", "1").SetCookie("b", "2")

	value, _ := resp.Header("Set-Cookie")
	assert.Equal(t, "a=1; Path=/\nb=2; Path=/", value)
}

func TestSend_FixedLength(t *testing.T) {
	resp := message.Text("Hello")
	recorder := &eventRecorder{}

	require.NoError(t, resp.Send(context.Background(), recorder.send))
	require.Len(t, recorder.events, 2)

	start := recorder.events[0]
	assert.Equal(t, gateway.EventResponseStart, start.Type)
	assert.Equal(t, 200, start.Status)

	contentType, ok := headerValue(t, start.Headers, "content-type")
	require.True(t, ok)
	assert.Equal(t, "text/plain; charset=utf-8", contentType)

	contentLength, ok := headerValue(t, start.Headers, "content-length")
	require.True(t, ok)
	assert.Equal(t, "5", contentLength)

	body := recorder.events[1]
	assert.Equal(t, gateway.EventResponseBody, body.Type)
	assert.Equal(t, "Hello", string(body.Body))
	assert.False(t, body.More)
	assert.True(t, resp.Sent())
}

func TestSend_PresetContentLength(t *testing.T) {
	resp := message.Text("Hello")
	resp.SetHeader("Content-Length", "99")
	recorder := &eventRecorder{}

	require.NoError(t, resp.Send(context.Background(), recorder.send))

	contentLength, ok := headerValue(t, recorder.events[0].Headers, "content-length")
	require.True(t, ok)
	assert.Equal(t, "99", contentLength)
}

func TestSend_Twice(t *testing.T) {
	resp := message.Text("once")
	recorder := &eventRecorder{}

	require.NoError(t, resp.Send(context.Background(), recorder.send))
	emitted := len(recorder.events)

	err := resp.Send(context.Background(), recorder.send)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrResponseSent)
	assert.True(t, errors.IsFatal(err))

	// the first call's events are untouched
	assert.Len(t, recorder.events, emitted)
}

func TestSend_Streaming(t *testing.T) {
	resp := message.Stream([]any{[]byte("a"), []byte("b"), []byte("c")}, "text/plain")
	recorder := &eventRecorder{}

	require.NoError(t, resp.Send(context.Background(), recorder.send))
	require.Len(t, recorder.events, 5)

	start := recorder.events[0]
	assert.Equal(t, gateway.EventResponseStart, start.Type)
	_, hasLength := headerValue(t, start.Headers, "content-length")
	assert.False(t, hasLength)

	for i, want := range []string{"a", "b", "c"} {
		event := recorder.events[i+1]
		assert.Equal(t, gateway.EventResponseBody, event.Type)
		assert.Equal(t, want, string(event.Body))
		assert.True(t, event.More)
	}

	terminal := recorder.events[4]
	assert.Equal(t, gateway.EventResponseBody, terminal.Type)
	assert.Empty(t, terminal.Body)
	assert.False(t, terminal.More)
}

func TestSend_StreamingCoercesChunks(t *testing.T) {
	resp := message.Stream([]any{"text", 42}, "text/plain")
	recorder := &eventRecorder{}

	require.NoError(t, resp.Send(context.Background(), recorder.send))
	assert.Equal(t, "text", string(recorder.events[1].Body))
	assert.Equal(t, "42", string(recorder.events[2].Body))
}

func TestSend_SetCookieExpandsToWireHeaders(t *testing.T) {
	resp := message.Text("x")
	resp.SetCookie("a", "1").SetCookie("b", "2")
	recorder := &eventRecorder{}

	require.NoError(t, resp.Send(context.Background(), recorder.send))

	var cookies []string
	for _, pair := range recorder.events[0].Headers {
		if string(pair[0]) == "set-cookie" {
			cookies = append(cookies, string(pair[1]))
		}
	}
	assert.Equal(t, []string{"a=1; Path=/", "b=2; Path=/"}, cookies)
}
