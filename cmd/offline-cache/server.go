package main

import (
	"encoding/json"
	"net/http"
	"time"

	offlinecache "github.com/always-cache/offline-cache"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const controlPrefix = "/.offline-cache"

type status struct {
	Version string `json:"version"`
	State   string `json:"state"`
}

// newRouter mounts the worker for all requests,
// plus control endpoints for re-running install and activation.
func newRouter(worker *offlinecache.Worker, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RemoteAddrHandler("sourceIp"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Trace().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("code", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))

	r.Route(controlPrefix, func(r chi.Router) {
		r.Post("/install", func(w http.ResponseWriter, r *http.Request) {
			if err := worker.Install(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			writeStatus(w, r, worker)
		})
		r.Post("/activate", func(w http.ResponseWriter, r *http.Request) {
			if err := worker.Activate(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			writeStatus(w, r, worker)
		})
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeStatus(w, r, worker)
		})
	})
	r.Handle("/*", worker)
	return r
}

func writeStatus(w http.ResponseWriter, r *http.Request, worker *offlinecache.Worker) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	err := json.NewEncoder(w).Encode(status{
		Version: worker.Version(),
		State:   worker.State().String(),
	})
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Could not write status")
	}
}
