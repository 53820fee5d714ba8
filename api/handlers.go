package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"nearest-point-service/cache"
	"nearest-point-service/geo"
	"nearest-point-service/models"
	"nearest-point-service/spatial"
)

// Server holds the handler dependencies. The index is injected, not
// global, so tests can stand up a server around any fixture dataset.
type Server struct {
	index *spatial.Index
	cache *cache.QueryCache
	log   *slog.Logger
}

func NewServer(index *spatial.Index, qc *cache.QueryCache, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{index: index, cache: qc, log: log}
}

// NearestResponse is the wire shape of a nearest-point query.
type NearestResponse struct {
	Results        []models.NearestResult `json:"results"`
	Count          int                    `json:"count"`
	TotalIndexed   int                    `json:"totalIndexed"`
	Source         string                 `json:"source"`
	LoadedAt       string                 `json:"loadedAt"`
	UsingTreeIndex bool                   `json:"usingTreeIndex"`
}

// Nearest answers GET /nearest?lat=&lng=&limit=. Latitude and longitude
// are required; out-of-range values are normalized, not rejected. The
// limit defaults to 1 and is capped at spatial.MaxLimit.
func (s *Server) Nearest(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		http.Error(w, "missing or invalid lat parameter", http.StatusBadRequest)
		return
	}
	lng, err := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err != nil {
		http.Error(w, "missing or invalid lng parameter", http.StatusBadRequest)
		return
	}
	limit := 1
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
	}

	// Cache key uses the normalized coordinate so wrapped and clamped
	// variants of the same query share an entry.
	key := cache.Key(geo.ClampLatitude(lat), geo.NormalizeLongitude(lng), spatial.ClampLimit(limit))
	if payload, ok := s.cache.Get(r.Context(), key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
		return
	}

	results, err := s.index.FindNearest(lat, lng, limit)
	if err != nil {
		s.log.Error("nearest query failed", "error", err)
		http.Error(w, "point index unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	stats := s.index.Stats()

	resp := NearestResponse{
		Results:        results,
		Count:          len(results),
		TotalIndexed:   stats.TotalRowsIndexed,
		Source:         stats.SourcePath,
		LoadedAt:       stats.BuiltAt.Format(time.RFC3339),
		UsingTreeIndex: stats.UsingTreeIndex,
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	s.cache.Set(r.Context(), key, payload)
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

// StatsHandler answers GET /stats with the memoized build statistics.
// Before any build attempt there is nothing to report.
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.index.Stats()
	if stats == nil {
		http.Error(w, "index not built yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// Health answers GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
