package router_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/externref/macro/errors"
	"github.com/externref/macro/gateway"
	"github.com/externref/macro/message"
	"github.com/externref/macro/metric"
	"github.com/externref/macro/router"
)

// recorder collects the response events pushed by one dispatch
type recorder struct {
	events []gateway.ResponseEvent
}

func (r *recorder) send(_ context.Context, event gateway.ResponseEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) status(t *testing.T) int {
	t.Helper()
	require.NotEmpty(t, r.events)
	require.Equal(t, gateway.EventResponseStart, r.events[0].Type)
	return r.events[0].Status
}

func (r *recorder) body(t *testing.T) string {
	t.Helper()
	var body []byte
	for _, event := range r.events[1:] {
		body = append(body, event.Body...)
	}
	return string(body)
}

// receiveChunks builds a ReceiveFunc that delivers the given body chunks
func receiveChunks(chunks ...[]byte) gateway.ReceiveFunc {
	i := 0
	return func(_ context.Context) (gateway.RequestMessage, error) {
		if len(chunks) == 0 {
			return gateway.RequestMessage{}, nil
		}
		msg := gateway.RequestMessage{Body: chunks[i], More: i < len(chunks)-1}
		i++
		return msg, nil
	}
}

func httpScope(method, path string) gateway.Scope {
	return gateway.Scope{Type: gateway.ScopeHTTP, Method: method, Path: path, HTTPVersion: "1.1"}
}

func textHandler(text string) router.Handler {
	return func(_ context.Context, _ *message.Request, _ router.Params) (*message.Response, error) {
		return message.Text(text), nil
	}
}

func dispatch(t *testing.T, rt *router.Router, scope gateway.Scope, body ...[]byte) *recorder {
	t.Helper()
	rec := &recorder{}
	require.NoError(t, rt.Dispatch(context.Background(), scope, receiveChunks(body...), rec.send))
	return rec
}

func TestRegister_Validation(t *testing.T) {
	rt := router.New()

	tests := []struct {
		name     string
		template string
		method   string
		handler  router.Handler
		opts     []router.RegisterOption
	}{
		{"nil handler", "/a", "GET", nil, nil},
		{"invalid method", "/a", "FETCH", textHandler("x"), nil},
		{"missing leading slash", "a", "GET", textHandler("x"), nil},
		{"duplicate placeholder", "/a/{id}/{id}", "GET", textHandler("x"), nil},
		{"invalid placeholder name", "/a/{1bad}", "GET", textHandler("x"), nil},
		{
			"declared param not in template", "/a/{id}", "GET", textHandler("x"),
			[]router.RegisterOption{router.WithParamTypes(map[string]router.ParamType{"other": router.ParamInt})},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rt.Register(tt.template, tt.method, tt.handler, tt.opts...)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestDispatch_StaticRoute(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/", textHandler("Hello, world!")))

	rec := dispatch(t, rt, httpScope("GET", "/"))
	assert.Equal(t, 200, rec.status(t))
	assert.Equal(t, "Hello, world!", rec.body(t))
}

func TestDispatch_PathVariableExtraction(t *testing.T) {
	rt := router.New()
	var got string
	require.NoError(t, rt.Get("/items/{id}", func(_ context.Context, _ *message.Request, params router.Params) (*message.Response, error) {
		got = params.String("id")
		return message.Text(got), nil
	}))

	rec := dispatch(t, rt, httpScope("GET", "/items/42"))
	assert.Equal(t, 200, rec.status(t))
	assert.Equal(t, "42", got)
}

func TestDispatch_TypedCast(t *testing.T) {
	rt := router.New()
	var got int
	require.NoError(t, rt.Get("/items/{id}", func(_ context.Context, _ *message.Request, params router.Params) (*message.Response, error) {
		got = params.Int("id")
		return message.Text("ok"), nil
	}, router.WithParamTypes(map[string]router.ParamType{"id": router.ParamInt})))

	rec := dispatch(t, rt, httpScope("GET", "/items/42"))
	assert.Equal(t, 200, rec.status(t))
	assert.Equal(t, 42, got)
}

func TestDispatch_CastFailureIs404(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/items/{id}", textHandler("ok"),
		router.WithParamTypes(map[string]router.ParamType{"id": router.ParamInt})))

	rec := dispatch(t, rt, httpScope("GET", "/items/abc"))
	assert.Equal(t, 404, rec.status(t))
	assert.Equal(t, "Not Found", rec.body(t))
}

func TestDispatch_WrongMethodIs404(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/items", textHandler("ok")))

	rec := dispatch(t, rt, httpScope("POST", "/items"))
	assert.Equal(t, 404, rec.status(t))
	assert.Equal(t, "Not Found", rec.body(t))
}

func TestDispatch_NoRouteIs404(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/items", textHandler("ok")))

	rec := dispatch(t, rt, httpScope("GET", "/missing"))
	assert.Equal(t, 404, rec.status(t))
	assert.Equal(t, "Not Found", rec.body(t))
}

func TestDispatch_QueryStripped(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/search", func(_ context.Context, req *message.Request, _ router.Params) (*message.Response, error) {
		q := req.Query()
		assert.Equal(t, []string{"a", "b"}, q["q"])
		assert.Equal(t, "1", q["x"])
		return message.Text("ok"), nil
	}))

	rec := dispatch(t, rt, httpScope("GET", "/search?q=a&q=b&x=1"))
	assert.Equal(t, 200, rec.status(t))
}

func TestDispatch_FirstRegisteredWins(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/items/{id}", textHandler("first")))
	require.NoError(t, rt.Get("/items/{name}", textHandler("second")))

	rec := dispatch(t, rt, httpScope("GET", "/items/x"))
	assert.Equal(t, "first", rec.body(t))
}

func TestDispatch_MethodFallsThroughToLaterPattern(t *testing.T) {
	// the first matching pattern lacks the method; scanning continues
	rt := router.New()
	require.NoError(t, rt.Get("/items/{id}", textHandler("get")))
	require.NoError(t, rt.Post("/items/{name}", textHandler("post")))

	rec := dispatch(t, rt, httpScope("POST", "/items/x"))
	assert.Equal(t, 200, rec.status(t))
	assert.Equal(t, "post", rec.body(t))
}

func TestRegister_OverwritesSamePatternAndMethod(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/items", textHandler("old")))
	require.NoError(t, rt.Get("/items", textHandler("new")))

	rec := dispatch(t, rt, httpScope("GET", "/items"))
	assert.Equal(t, "new", rec.body(t))
	assert.Equal(t, []string{"/items"}, rt.Templates())
}

func TestDispatch_LiteralDotsNotWildcards(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/file.txt", textHandler("ok")))

	rec := dispatch(t, rt, httpScope("GET", "/fileAtxt"))
	assert.Equal(t, 404, rec.status(t))
}

func TestDispatch_FullMatchOnly(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/items", textHandler("ok")))

	for _, path := range []string{"/items/extra", "/prefix/items", "/item"} {
		rec := dispatch(t, rt, httpScope("GET", path))
		assert.Equal(t, 404, rec.status(t), "path %s", path)
	}
}

func TestDispatch_UnsupportedScope(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/", textHandler("ok")))

	rec := &recorder{}
	scope := gateway.Scope{Type: "websocket", Path: "/"}
	require.NoError(t, rt.Dispatch(context.Background(), scope, nil, rec.send))

	assert.Equal(t, 400, rec.status(t))
	assert.Equal(t, "Only HTTP requests are supported", rec.body(t))
}

func TestDispatch_BodyAccumulation(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Post("/echo", func(_ context.Context, req *message.Request, _ router.Params) (*message.Response, error) {
		return message.Text(req.Text()), nil
	}))

	rec := dispatch(t, rt, httpScope("POST", "/echo"),
		[]byte("chunk-1 "), []byte("chunk-2 "), []byte("chunk-3"))
	assert.Equal(t, "chunk-1 chunk-2 chunk-3", rec.body(t))
}

func TestDispatch_ReceiveErrorPropagates(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/", textHandler("ok")))

	boom := stderrors.New("transport broke")
	receive := func(_ context.Context) (gateway.RequestMessage, error) {
		return gateway.RequestMessage{}, boom
	}

	rec := &recorder{}
	err := rt.Dispatch(context.Background(), httpScope("GET", "/"), receive, rec.send)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, errors.IsTransient(err))
	assert.Empty(t, rec.events)
}

func TestDispatch_HandlerErrorPropagates(t *testing.T) {
	rt := router.New()
	boom := stderrors.New("handler broke")
	require.NoError(t, rt.Get("/", func(_ context.Context, _ *message.Request, _ router.Params) (*message.Response, error) {
		return nil, boom
	}))

	rec := &recorder{}
	err := rt.Dispatch(context.Background(), httpScope("GET", "/"), receiveChunks(), rec.send)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	// nothing was serialized for a failed handler
	assert.Empty(t, rec.events)
}

func TestDispatch_StreamingResponse(t *testing.T) {
	rt := router.New()
	require.NoError(t, rt.Get("/stream", func(_ context.Context, _ *message.Request, _ router.Params) (*message.Response, error) {
		return message.Stream([]any{[]byte("a"), []byte("b")}, "text/plain"), nil
	}))

	rec := dispatch(t, rt, httpScope("GET", "/stream"))
	require.Len(t, rec.events, 4)
	assert.True(t, rec.events[1].More)
	assert.True(t, rec.events[2].More)
	assert.False(t, rec.events[3].More)
	assert.Equal(t, "ab", rec.body(t))
}

func TestDispatch_Metrics(t *testing.T) {
	metrics := metric.NewMetrics()
	rt := router.New(router.WithMetrics(metrics))
	require.NoError(t, rt.Get("/items/{id}", textHandler("ok"),
		router.WithParamTypes(map[string]router.ParamType{"id": router.ParamInt})))

	dispatch(t, rt, httpScope("GET", "/items/1"))
	dispatch(t, rt, httpScope("GET", "/items/abc"))
	dispatch(t, rt, httpScope("GET", "/missing"))

	rec := &recorder{}
	require.NoError(t, rt.Dispatch(context.Background(), gateway.Scope{Type: "lifespan"}, nil, rec.send))

	assert.Equal(t, float64(1),
		testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, float64(2),
		testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "404")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CastFailures))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.RouteNotFound))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.UnsupportedScope))
}
