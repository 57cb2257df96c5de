package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/shiryo/internal/cache"
	"github.com/hyperjump/shiryo/internal/corpus"
	"github.com/hyperjump/shiryo/internal/ingest"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/storage"
	"go.uber.org/zap"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.String("folder", query.Folder), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// handlePutDocument ingests the raw request body as document {id}. The Content-Type header
// is the mime hint; title, folder, tags (comma separated or repeated) and async come from
// the query string.
func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "could not read body")
		return
	}

	q := r.URL.Query()
	input := &models.DocumentInput{
		ID:        id,
		Title:     q.Get("title"),
		Folder:    q.Get("folder"),
		Tags:      parseTags(q["tags"]),
		SourceURI: q.Get("source"),
		MimeHint:  mimeHint(r.Header.Get("Content-Type")),
		Content:   content,
	}
	async, _ := strconv.ParseBool(q.Get("async"))
	s.logger.Debug("put document request",
		zap.String("id", id),
		zap.String("mime_hint", input.MimeHint),
		zap.Int("bytes", len(content)),
		zap.Bool("async", async))

	if async {
		if _, err := s.ingest.SubmitAsync(r.Context(), input); err != nil {
			s.respondErr(w, err)
			return
		}
		s.respondJSON(w, http.StatusAccepted, map[string]string{"id": input.ID, "status": "queued"})
		return
	}

	rec, err := s.ingest.Submit(r.Context(), input)
	if err != nil {
		s.logger.Error("ingestion failed", zap.String("id", id), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.corpus.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

// documentSummary is a record without its extracted text.
type documentSummary struct {
	ID               string                  `json:"id"`
	Title            string                  `json:"title"`
	Folder           string                  `json:"folder"`
	Tags             []string                `json:"tags,omitempty"`
	Status           models.Status           `json:"status"`
	ExtractionMethod models.ExtractionMethod `json:"extraction_method"`
	Confidence       float64                 `json:"confidence"`
	Version          uint64                  `json:"version"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	docs := s.corpus.List(folder)
	out := make([]documentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentSummary{
			ID:               d.ID,
			Title:            d.Title,
			Folder:           d.Folder,
			Tags:             d.Tags,
			Status:           d.Status,
			ExtractionMethod: d.ExtractionMethod,
			Confidence:       d.Confidence,
			Version:          d.Version,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": out,
		"total":     len(out),
		"folder":    scopeOf(folder),
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.ingest.Remove(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"corpus": s.corpus.Stats(),
		"ingest": s.ingest.Stats(),
	}
	if s.cache != nil {
		resp["cache"] = s.cache.Stats()
	} else {
		resp["cache"] = cache.Stats{}
	}
	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"adapters":         s.config.Extraction.Adapters,
			"accept_threshold": s.config.Extraction.AcceptThreshold,
			"floor":            s.config.Extraction.Floor,
			"candidate_source": s.config.Search.CandidateSource,
			"cache_enabled":    s.config.Cache.EnabledOrDefault(),
			"database_path":    s.config.Storage.DatabasePath,
			"bleve_index_path": s.config.Storage.BleveIndexPath,
		}
		usage, err := storage.MeasureDiskUsage(s.config.Storage.DatabasePath, s.config.Storage.BleveIndexPath)
		if err == nil {
			resp["disk_usage_bytes"] = usage.Total()
			resp["disk_usage"] = usage
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflictInFlight):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// mimeHint strips parameters from a Content-Type header. Form encodings, which clients
// send by default for raw bodies, carry no information and are dropped.
func mimeHint(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mt {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return ""
	}
	return mt
}

func parseTags(values []string) []string {
	var tags []string
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}

// scopeOf returns the normalized folder, or "" for an invalid reference.
func scopeOf(folder string) string {
	scope, err := corpus.ResolveScope(folder)
	if err != nil {
		return ""
	}
	return scope
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondError(w, statusFor(err), err.Error())
}
