package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avolkov/graphrag/internal/core/domain"
	"github.com/avolkov/graphrag/internal/core/ports"
	"github.com/avolkov/graphrag/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	search  ports.SearchService
	graph   ports.GraphStore
	metrics *metrics.SearchMetrics
	logger  *slog.Logger
}

func NewRouter(search ports.SearchService, graph ports.GraphStore, m *metrics.SearchMetrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{search: search, graph: graph, metrics: m, logger: logger}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/search", rt.searchDocuments)
	mux.HandleFunc("/v1/entities/", rt.getEntityByID)
	return rt.metrics.Middleware(serviceName, mux)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Threshold float64  `json:"threshold"`
	DocTypes  []string `json:"doc_types"`
	DateFrom  string   `json:"date_from"`
	DateTo    string   `json:"date_to"`
	Authors   []string `json:"authors"`
}

func (rt *Router) searchDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	filter := domain.SearchFilter{
		DocTypes: req.DocTypes,
		Authors:  req.Authors,
	}
	var err error
	if filter.DateFrom, err = parseDate(req.DateFrom); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date_from"})
		return
	}
	if filter.DateTo, err = parseDate(req.DateTo); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date_to"})
		return
	}

	started := time.Now()
	response, err := rt.search.Search(r.Context(), domain.SearchQuery{
		Text:      req.Query,
		Filter:    filter,
		Limit:     req.Limit,
		Threshold: req.Threshold,
	})
	if err != nil {
		rt.metrics.RecordSearch(serviceName, 0, time.Since(started), err)
		rt.logger.Error("search failed", "error", err)
		status := mapErrorToHTTPStatus(err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	rt.metrics.RecordSearch(serviceName, len(response.Results), time.Since(started), nil)
	rt.metrics.RecordCacheLookup(serviceName, response.CacheHit)
	for _, channel := range response.DegradedChannels {
		rt.metrics.RecordChannelDegraded(serviceName, channel)
	}
	if response.RerankMetrics != nil {
		rt.metrics.RecordRerank(serviceName, string(response.RerankStrategy),
			response.RerankMetrics.ReductionRatio, response.RerankMetrics.QualityScore)
	}

	writeJSON(w, http.StatusOK, response)
}

func (rt *Router) getEntityByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/entities/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "entity id is required"})
		return
	}

	entity, err := rt.graph.GetEntityByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	aliases, err := rt.graph.ListAliasesByEntity(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity":  entity,
		"aliases": aliases,
	})
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
