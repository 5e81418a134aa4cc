package server

import (
	"context"
	"encoding/json"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/wcatools/competition-finder/pkg/aggregator"
	"github.com/wcatools/competition-finder/pkg/cache"
	"github.com/wcatools/competition-finder/pkg/config"
	"github.com/wcatools/competition-finder/pkg/country"
	"github.com/wcatools/competition-finder/pkg/filter"
	"github.com/wcatools/competition-finder/pkg/format"
	"github.com/wcatools/competition-finder/pkg/geocode"
	"github.com/wcatools/competition-finder/pkg/logger"
	"github.com/wcatools/competition-finder/pkg/metrics"
	"github.com/wcatools/competition-finder/pkg/models"
	"github.com/wcatools/competition-finder/pkg/prefs"
	"github.com/wcatools/competition-finder/pkg/scheduler"
)

// Server exposes the aggregation pipeline over HTTP. Every collaborator
// except the aggregator may be nil; the matching endpoints then degrade or
// answer 503 instead of panicking.
type Server struct {
	config     config.Config
	aggregator *aggregator.Aggregator
	store      cache.Store
	countries  *country.Client
	geocoder   *geocode.Client
	prefs      *prefs.Store
	scheduler  *scheduler.Scheduler
	httpServer *http.Server
}

func New(cfg config.Config, agg *aggregator.Aggregator, store cache.Store,
	countries *country.Client, geocoder *geocode.Client, preferences *prefs.Store,
	sched *scheduler.Scheduler) *Server {
	return &Server{
		config:     cfg,
		aggregator: agg,
		store:      store,
		countries:  countries,
		geocoder:   geocoder,
		prefs:      preferences,
		scheduler:  sched,
	}
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        ":" + s.config.Port,
		Handler:     s.routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	logger.Info("Server listening on port %s", s.config.Port)
	return s.httpServer.ListenAndServe()
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/competitions", s.handleCompetitions).Methods("GET")
	api.HandleFunc("/countries", s.handleCountries).Methods("GET")
	api.HandleFunc("/geocode", s.handleGeocode).Methods("GET")
	api.HandleFunc("/cache/clear", s.handleCacheClear).Methods("POST")
	api.HandleFunc("/cache/stats", s.handleCacheStats).Methods("GET")
	api.HandleFunc("/scheduler/reload", s.handleSchedulerReload).Methods("POST")
	api.HandleFunc("/preferences", s.handleGetPreferences).Methods("GET")
	api.HandleFunc("/preferences", s.handlePutPreferences).Methods("PUT")

	router.HandleFunc(metrics.StatsPath, metrics.StatsHandler).Methods("GET")
	router.Handle(metrics.DebugVarsPath, expvar.Handler()).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	return c.Handler(metrics.Instrument(router))
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// competitionsResponse is the non-streaming answer of /api/competitions.
// EmptyState carries the placeholder text when Rows is empty.
type competitionsResponse struct {
	Rows         []format.Row `json:"rows"`
	EventOptions []string     `json:"eventOptions"`
	EmptyState   string       `json:"emptyState,omitempty"`
	Total        int          `json:"total"`
}

// progressEvent is one NDJSON line of the streaming answer.
type progressEvent struct {
	Type        string `json:"type"`
	CountryCode string `json:"countryCode,omitempty"`
	Loaded      int    `json:"loaded,omitempty"`
	Total       int    `json:"total,omitempty"`
}

func (s *Server) handleCompetitions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	codes := splitCountryCodes(query.Get("countries"))
	if len(codes) == 0 {
		writeJSON(w, http.StatusOK, competitionsResponse{
			Rows:       []format.Row{},
			EmptyState: format.EmptyState(format.ReasonNoCountries),
		})
		return
	}

	state := models.FilterState{
		SelectedEvents: splitCSV(query.Get("events")),
		Duration:       query.Get("duration"),
		SearchQuery:    query.Get("q"),
	}
	if raw := query.Get("month"); raw != "" {
		if month, err := strconv.Atoi(raw); err == nil {
			state.Month = &month
		}
	}

	opts := filter.Options{}
	userLocation := parseLocation(query.Get("lat"), query.Get("lon"))
	opts.UserLocation = userLocation
	if query.Get("sort") == "distance" && userLocation != nil {
		opts.Sort = filter.SortDistance
	}

	formatOpts := format.Options{
		MultiCountry: len(codes) > 1,
		UserLocation: userLocation,
	}

	if query.Get("stream") == "1" {
		s.streamCompetitions(w, r, codes, state, opts, formatOpts)
		return
	}

	merged, started := s.aggregator.Aggregate(r.Context(), codes, nil)
	if !started {
		http.Error(w, "an aggregation is already running", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, buildResponse(merged, state, opts, formatOpts))
}

// streamCompetitions writes NDJSON: one progress line per resolved country,
// then a final result line with the filtered rows.
func (s *Server) streamCompetitions(w http.ResponseWriter, r *http.Request,
	codes []string, state models.FilterState, opts filter.Options, formatOpts format.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)

	merged, started := s.aggregator.Aggregate(r.Context(), codes, func(p aggregator.Progress) {
		_ = enc.Encode(progressEvent{
			Type:        "progress",
			CountryCode: p.CountryCode,
			Loaded:      p.Loaded,
			Total:       p.Total,
		})
		flusher.Flush()
	})
	if !started {
		_ = enc.Encode(map[string]string{"type": "error", "error": "an aggregation is already running"})
		return
	}

	response := buildResponse(merged, state, opts, formatOpts)
	_ = enc.Encode(struct {
		Type string `json:"type"`
		competitionsResponse
	}{Type: "result", competitionsResponse: response})
	flusher.Flush()
}

func buildResponse(merged []models.Competition, state models.FilterState,
	opts filter.Options, formatOpts format.Options) competitionsResponse {
	filtered := filter.Apply(merged, state, opts)
	response := competitionsResponse{
		Rows:         format.Rows(filtered, formatOpts),
		EventOptions: format.EventOptions(merged),
		Total:        len(filtered),
	}
	if len(filtered) == 0 {
		response.EmptyState = format.EmptyState(format.ReasonNoMatches)
	}
	return response
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	if s.countries == nil {
		http.Error(w, "country list unavailable", http.StatusServiceUnavailable)
		return
	}
	list, err := s.countries.List(r.Context())
	if err != nil {
		logger.Error("Country list request failed: %v", err)
		http.Error(w, "failed to load countries", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"countries": list})
}

// handleGeocode resolves lat/lon to a country code. Failures degrade to an
// empty code so clients fall back to manual selection.
func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	loc := parseLocation(query.Get("lat"), query.Get("lon"))
	if loc == nil {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}

	code := ""
	if s.geocoder != nil {
		resolved, err := s.geocoder.CountryCode(r.Context(), loc.Latitude, loc.Longitude)
		if err != nil {
			logger.Warn("Reverse geocoding failed: %v", err)
		} else {
			code = resolved
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"countryCode": code})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.store.ClearAll(); err != nil {
		logger.Error("Cache clear failed: %v", err)
		http.Error(w, "failed to clear cache", http.StatusInternalServerError)
		return
	}
	logger.Info("Cache cleared via API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
		return
	}
	stats, err := s.store.Stats()
	if err != nil {
		logger.Error("Cache stats failed: %v", err)
		http.Error(w, "failed to read cache stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSchedulerReload(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "scheduler not running", http.StatusServiceUnavailable)
		return
	}
	if err := s.scheduler.Reload(); err != nil {
		logger.Error("Scheduler reload failed: %v", err)
		http.Error(w, "failed to reload scheduler", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "reloaded",
		"config": s.scheduler.GetConfig(),
	})
}

// preferencesPayload is the wire shape of GET and PUT /api/preferences.
type preferencesPayload struct {
	Countries []string `json:"countries"`
	ViewMode  string   `json:"viewMode"`
	Theme     string   `json:"theme"`
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	if !s.awaitPrefs(w, r) {
		return
	}

	countries, err := s.prefs.Countries()
	if err != nil {
		logger.Error("Failed to read preferred countries: %v", err)
	}
	viewMode, err := s.prefs.ViewMode()
	if err != nil {
		logger.Error("Failed to read view mode: %v", err)
	}
	theme, err := s.prefs.Theme()
	if err != nil {
		logger.Error("Failed to read theme: %v", err)
	}

	if countries == nil {
		countries = []string{}
	}
	writeJSON(w, http.StatusOK, preferencesPayload{
		Countries: countries,
		ViewMode:  viewMode,
		Theme:     theme,
	})
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	if !s.awaitPrefs(w, r) {
		return
	}

	var payload preferencesPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := s.prefs.SetCountries(payload.Countries); err != nil {
		logger.Error("Failed to store preferred countries: %v", err)
		http.Error(w, "failed to store preferences", http.StatusInternalServerError)
		return
	}
	if err := s.prefs.SetViewMode(payload.ViewMode); err != nil {
		logger.Error("Failed to store view mode: %v", err)
		http.Error(w, "failed to store preferences", http.StatusInternalServerError)
		return
	}
	if err := s.prefs.SetTheme(payload.Theme); err != nil {
		logger.Error("Failed to store theme: %v", err)
		http.Error(w, "failed to store preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// awaitPrefs blocks until the preference store is ready or the request is
// cancelled. Reports whether the handler may proceed.
func (s *Server) awaitPrefs(w http.ResponseWriter, r *http.Request) bool {
	if s.prefs == nil {
		http.Error(w, "preferences unavailable", http.StatusServiceUnavailable)
		return false
	}
	select {
	case <-s.prefs.Ready():
		return true
	case <-r.Context().Done():
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// splitCountryCodes normalizes country codes to upper case; event codes stay
// as sent.
func splitCountryCodes(raw string) []string {
	codes := splitCSV(raw)
	for i, code := range codes {
		codes[i] = strings.ToUpper(code)
	}
	return codes
}

// parseLocation returns nil unless both coordinates parse.
func parseLocation(rawLat, rawLon string) *models.Geocoordinates {
	if rawLat == "" || rawLon == "" {
		return nil
	}
	lat, errLat := strconv.ParseFloat(rawLat, 64)
	lon, errLon := strconv.ParseFloat(rawLon, 64)
	if errLat != nil || errLon != nil {
		return nil
	}
	return &models.Geocoordinates{Latitude: lat, Longitude: lon}
}
