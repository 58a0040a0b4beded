package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSealed(t *testing.T, setup func(r *Router)) *Router {
	t.Helper()
	r := New(nil)
	setup(r)
	r.Seal()
	return r
}

func TestDispatchInvokesMatchingHandlerOnce(t *testing.T) {
	var rootCalls, rpcCalls int
	var events []Event
	r := newSealed(t, func(r *Router) {
		require.NoError(t, r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			rootCalls++
			w.WriteHeader(http.StatusOK)
		}))
		require.NoError(t, r.Post("/rpc", func(w http.ResponseWriter, _ *http.Request) {
			rpcCalls++
			w.WriteHeader(http.StatusAccepted)
		}))
		require.NoError(t, r.EveryMatch(func(ev Event) { events = append(events, ev) }))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 0, rootCalls)
	assert.Equal(t, 1, rpcCalls)

	require.Len(t, events, 1)
	assert.Equal(t, http.StatusAccepted, events[0].Status)
	assert.Equal(t, http.MethodPost, events[0].Method)
	assert.Equal(t, "/rpc", events[0].URI)
}

func TestNoMatchIsRouteNotFound(t *testing.T) {
	hooks := 0
	r := newSealed(t, func(r *Router) {
		require.NoError(t, r.Get("/", func(http.ResponseWriter, *http.Request) {}))
		require.NoError(t, r.EveryMatch(func(ev Event) {
			hooks++
			assert.Equal(t, http.StatusNotFound, ev.Status)
		}))
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/missing", nil),
		httptest.NewRequest(http.MethodDelete, "/", nil),
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, "RouteNotFound", body["error"])
	}
	assert.Equal(t, 2, hooks)
}

func TestFirstRegisteredRouteWins(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Get("/a", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(201) }))
	require.Error(t, r.Get("/a", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(202) }))
	r.Seal()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/a", nil))
	assert.Equal(t, 201, rec.Code)
}

func TestHookPanicDoesNotAlterResponse(t *testing.T) {
	second := 0
	r := newSealed(t, func(r *Router) {
		require.NoError(t, r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))
		require.NoError(t, r.EveryMatch(func(Event) { panic("hook broke") }))
		require.NoError(t, r.EveryMatch(func(Event) { second++ }))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, 1, second)
}

func TestHandlerPanicBecomesEnvelope(t *testing.T) {
	var status int
	r := newSealed(t, func(r *Router) {
		require.NoError(t, r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("bad") }))
		require.NoError(t, r.EveryMatch(func(ev Event) { status = ev.Status }))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, rec.Body.String(), `"error":"InternalError"`)
}

func TestRegistrationClosedAfterSeal(t *testing.T) {
	r := New(nil)
	r.Seal()
	require.Error(t, r.Get("/", func(http.ResponseWriter, *http.Request) {}))
	require.Error(t, r.EveryMatch(func(Event) {}))
}

func TestUnsealedRouterRefusesTraffic(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Get("/", func(http.ResponseWriter, *http.Request) {}))

	var seen []Event
	require.NoError(t, r.EveryMatch(func(ev Event) { seen = append(seen, ev) }))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Len(t, seen, 1)
	assert.Equal(t, http.StatusServiceUnavailable, seen[0].Status)
	assert.Equal(t, "/", seen[0].URI)
}

func TestMatchPrefix(t *testing.T) {
	cases := []struct {
		path, prefix string
		want         bool
	}{
		{"/anything", "/", true},
		{"/bridge", "/bridge", true},
		{"/bridge/rpc", "/bridge", true},
		{"/bridge/rpc", "/bridge/", true},
		{"/bridgework", "/bridge", false},
		{"/other", "/bridge", false},
		{"/x", "", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchPrefix(tc.path, tc.prefix), "%s under %s", tc.path, tc.prefix)
	}
}
