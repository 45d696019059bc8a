package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	offlinecache "github.com/always-cache/offline-cache"
	"github.com/always-cache/offline-cache/storage"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(zerolog.InfoLevel)

func testRouter(t *testing.T, origin http.Handler) http.Handler {
	worker, err := offlinecache.New(offlinecache.Config{
		Storage: storage.NewMemStorage(),
		Fetcher: offlinecache.NewHandlerFetcher(origin),
		Version: "v1",
		Assets:  []string{"/chi"},
		Logger:  &testLogger,
	})
	require.NoError(t, err)
	return newRouter(worker, testLogger)
}

func getStatus(t *testing.T, rec *httptest.ResponseRecorder) status {
	t.Helper()
	var s status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	return s
}

func TestControlEndpoints(t *testing.T) {
	origin := chi.NewRouter()
	origin.Get("/chi", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello chi"))
	})
	handler := testRouter(t, origin)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", controlPrefix+"/status", nil))
	assert.Equal(t, status{Version: "v1", State: "uninitialized"}, getStatus(t, rec))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", controlPrefix+"/activate", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", controlPrefix+"/install", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "installing", getStatus(t, rec).State)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", controlPrefix+"/activate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", getStatus(t, rec).State)
}

func TestInstallFailureIsReported(t *testing.T) {
	handler := testRouter(t, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", controlPrefix+"/install", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "/chi")
}

func TestRouterProxiesEverythingElse(t *testing.T) {
	origin := chi.NewRouter()
	origin.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("home"))
	})
	origin.Post("/chi", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	})
	origin.Get("/chi", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello chi"))
	})
	handler := testRouter(t, origin)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, "home", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/chi", strings.NewReader("posted")))
	assert.Equal(t, "posted", rec.Body.String())
	assert.Empty(t, rec.Header().Get("Cache-Status"))
}

func TestRunLifecycle(t *testing.T) {
	worker, err := offlinecache.New(offlinecache.Config{
		Storage: storage.NewMemStorage(),
		Fetcher: offlinecache.NewHandlerFetcher(http.NotFoundHandler()),
		Version: "v1",
		Assets:  []string{"/"},
		Logger:  &testLogger,
	})
	require.NoError(t, err)

	// failed install is not fatal, the worker passes requests through
	startWorker(context.Background(), worker, testLogger)
	assert.Equal(t, offlinecache.StateUninitialized, worker.State())
}
