package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"icalarchive/internal/app"
	"icalarchive/internal/config"
	"icalarchive/internal/model"
	"icalarchive/internal/rules"
)

// --- sources ---

type sourceView struct {
	Name                 string     `json:"name"`
	URL                  string     `json:"url"`
	FetchIntervalMinutes int        `json:"fetch_interval_minutes"`
	Enabled              bool       `json:"enabled"`
	EventCount           int        `json:"event_count"`
	LastFetch            *time.Time `json:"last_fetch,omitempty"`
}

func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.app.Config.Load()
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]sourceView, 0, len(cfg.Sources))
	for name, src := range cfg.Sources {
		stats := s.app.Archive.SourceStats(name)
		views = append(views, sourceView{
			Name:                 name,
			URL:                  src.URL,
			FetchIntervalMinutes: src.FetchIntervalMinutes,
			Enabled:              src.IsEnabled(),
			EventCount:           stats.EventCount,
			LastFetch:            stats.LastFetch,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name                 string `json:"name"`
		URL                  string `json:"url"`
		FetchIntervalMinutes int    `json:"fetch_interval_minutes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FetchIntervalMinutes <= 0 {
		req.FetchIntervalMinutes = 30
	}

	err := s.app.CreateSource(req.Name, config.SourceConfig{
		URL:                  req.URL,
		FetchIntervalMinutes: req.FetchIntervalMinutes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "name": req.Name})
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL                  *string `json:"url"`
		FetchIntervalMinutes *int    `json:"fetch_interval_minutes"`
		Enabled              *bool   `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.app.UpdateSource(r.PathValue("name"), app.SourceUpdate{
		URL:                  req.URL,
		FetchIntervalMinutes: req.FetchIntervalMinutes,
		Enabled:              req.Enabled,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteSource(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleTriggerFetch(w http.ResponseWriter, r *http.Request) {
	if err := s.app.FetchSource(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "fetched"})
}

// --- events ---

type eventView struct {
	Key        string     `json:"key"`
	Source     string     `json:"source"`
	Summary    string     `json:"summary"`
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Hidden     bool       `json:"hidden"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := intParam(q.Get("page"), 1)
	perPage := intParam(q.Get("per_page"), 50)
	source := q.Get("source")
	category := q.Get("category")
	search := strings.ToLower(q.Get("search"))

	all := s.app.Archive.LoadAll()
	hidden := s.app.Hidden.Snapshot()

	views := make([]eventView, 0, len(all))
	for key, ev := range all {
		if source != "" && key.Source != source {
			continue
		}
		if category != "" && !ev.HasCategory(category) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(ev.Summary), search) {
			continue
		}
		_, isHidden := hidden[key]
		views = append(views, eventView{
			Key:        key.String(),
			Source:     key.Source,
			Summary:    ev.Summary,
			Start:      ev.Start,
			End:        ev.End,
			Categories: ev.Categories,
			Hidden:     isHidden,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Key < views[j].Key })

	total := len(views)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)

	writeJSON(w, http.StatusOK, map[string]any{
		"events":   views[start:end],
		"total":    total,
		"page":     page,
		"per_page": perPage,
		"pages":    (total + perPage - 1) / perPage,
	})
}

func (s *Server) handleHide(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKeyParam(w, r)
	if !ok {
		return
	}
	if err := s.app.HideEvent(key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "hidden"})
}

func (s *Server) handleUnhide(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKeyParam(w, r)
	if !ok {
		return
	}
	if err := s.app.UnhideEvent(key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shown"})
}

func (s *Server) handleEventSeries(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKeyParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.app.Series.MembersOf(key))
}

// --- outputs ---

func (s *Server) handleListOutputs(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.app.Config.Load()
	if err != nil {
		writeError(w, err)
		return
	}

	type outputView struct {
		Name string `json:"name"`
		config.OutputConfig
	}
	views := make([]outputView, 0, len(cfg.Outputs))
	for name, out := range cfg.Outputs {
		views = append(views, outputView{Name: name, OutputConfig: *out})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateOutput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		config.OutputConfig
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "output name is empty"})
		return
	}

	err := s.app.Config.Update(func(cfg *config.Config) error {
		if _, ok := cfg.Outputs[req.Name]; ok {
			return app.ErrAlreadyExists
		}
		out := req.OutputConfig
		cfg.Outputs[req.Name] = &out
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "name": req.Name})
}

func (s *Server) handleDeleteOutput(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	err := s.app.Config.Update(func(cfg *config.Config) error {
		if _, ok := cfg.Outputs[name]; !ok {
			return app.ErrOutputNotFound
		}
		delete(cfg.Outputs, name)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- rules ---

func (s *Server) handleListRules(w http.ResponseWriter, _ *http.Request) {
	specs, err := s.app.ListRules()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, specs)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var spec rules.Spec
	if !decodeBody(w, r, &spec) {
		return
	}

	created, err := s.app.CreateRule(spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteRule(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- series ---

type seriesView struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Color   string   `json:"color,omitempty"`
	Members []string `json:"event_keys"`
}

func (s *Server) handleListSeries(w http.ResponseWriter, _ *http.Request) {
	all := s.app.Series.List()
	views := make([]seriesView, 0, len(all))
	for _, sr := range all {
		view := seriesView{ID: sr.ID, Name: sr.Name, Color: sr.Color, Members: []string{}}
		for _, m := range sr.Members {
			view.Members = append(view.Members, m.String())
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateSeries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "series name is empty"})
		return
	}

	id, err := s.app.CreateSeries(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "id": id})
}

func (s *Server) handleDeleteSeries(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteSeries(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSetSeriesColor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Color string `json:"color"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.app.Series.SetColor(r.PathValue("id"), req.Color) {
		writeError(w, app.ErrSeriesNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleAddSeriesEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	key, ok := model.ParseEventKey(req.Key)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed event key"})
		return
	}
	if !s.app.Series.AddMember(r.PathValue("id"), key) {
		writeError(w, app.ErrSeriesNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (s *Server) handleRemoveSeriesEvent(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKeyParam(w, r)
	if !ok {
		return
	}
	if !s.app.Series.RemoveMember(r.PathValue("id"), key) {
		writeError(w, app.ErrSeriesNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// --- helpers ---

// decodeBody parses a JSON request body into v. An empty body leaves v
// at its zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

func parseKeyParam(w http.ResponseWriter, r *http.Request) (model.EventKey, bool) {
	key, ok := model.ParseEventKey(r.PathValue("key"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed event key"})
		return model.EventKey{}, false
	}
	return key, true
}

func intParam(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
