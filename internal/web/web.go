// Package web is the thin HTTP adapter over the core: derived feeds
// under /cal/ and a JSON management API under /api/. It holds no state of
// its own.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"icalarchive/internal/app"
	"icalarchive/internal/config"
	appLog "icalarchive/internal/log"
	"icalarchive/internal/rules"
)

// Server provides the feed and management endpoints.
type Server struct {
	app *app.App
	mux *http.ServeMux

	authUser string
	authPass string
}

// NewServer constructs a Server. auth may be nil to disable basic auth.
func NewServer(a *app.App, auth *config.BasicAuthConfig) *Server {
	s := &Server{
		app: a,
		mux: http.NewServeMux(),
	}
	if auth != nil && auth.Username != "" && auth.Password != "" {
		s.authUser = auth.Username
		s.authPass = auth.Password
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.authUser != "" {
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Serve runs the HTTP server until ctx is canceled.
func (s *Server) Serve(ctx context.Context, listen string) error {
	srv := &http.Server{Addr: listen, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+listen)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// basicAuthMiddleware wraps all handlers except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, s.authUser) || !secureCompare(p, s.authPass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ICalArchive", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /cal/{name}", s.handleFeed)

	s.mux.HandleFunc("GET /api/sources", s.handleListSources)
	s.mux.HandleFunc("POST /api/sources", s.handleCreateSource)
	s.mux.HandleFunc("PATCH /api/sources/{name}", s.handleUpdateSource)
	s.mux.HandleFunc("DELETE /api/sources/{name}", s.handleDeleteSource)
	s.mux.HandleFunc("POST /api/sources/{name}/fetch", s.handleTriggerFetch)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events/{key}/hide", s.handleHide)
	s.mux.HandleFunc("POST /api/events/{key}/show", s.handleUnhide)
	s.mux.HandleFunc("GET /api/events/{key}/series", s.handleEventSeries)

	s.mux.HandleFunc("GET /api/outputs", s.handleListOutputs)
	s.mux.HandleFunc("POST /api/outputs", s.handleCreateOutput)
	s.mux.HandleFunc("DELETE /api/outputs/{name}", s.handleDeleteOutput)

	s.mux.HandleFunc("GET /api/rules", s.handleListRules)
	s.mux.HandleFunc("POST /api/rules", s.handleCreateRule)
	s.mux.HandleFunc("DELETE /api/rules/{id}", s.handleDeleteRule)

	s.mux.HandleFunc("GET /api/series", s.handleListSeries)
	s.mux.HandleFunc("POST /api/series", s.handleCreateSeries)
	s.mux.HandleFunc("DELETE /api/series/{id}", s.handleDeleteSeries)
	s.mux.HandleFunc("PUT /api/series/{id}/color", s.handleSetSeriesColor)
	s.mux.HandleFunc("POST /api/series/{id}/events", s.handleAddSeriesEvent)
	s.mux.HandleFunc("DELETE /api/series/{id}/events/{key}", s.handleRemoveSeriesEvent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleFeed serves a derived calendar. The path is /cal/<output>.ics.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if len(name) > 4 && name[len(name)-4:] == ".ics" {
		name = name[:len(name)-4]
	}

	feed, err := s.app.OutputFeed(name)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.ics"`)
	_, _ = w.Write(feed)
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("response encode failed", err)
	}
}

// writeError maps core errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrSourceNotFound),
		errors.Is(err, app.ErrOutputNotFound),
		errors.Is(err, app.ErrRuleNotFound),
		errors.Is(err, app.ErrSeriesNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrAlreadyExists),
		errors.Is(err, app.ErrDuplicateRule):
		status = http.StatusConflict
	case errors.Is(err, rules.ErrInvalidRule):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
