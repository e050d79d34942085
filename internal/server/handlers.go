package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/somnia/internal/config"
	"github.com/hyperjump/somnia/internal/fileid"
	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/internal/pipeline"
	"github.com/hyperjump/somnia/internal/search"
	"github.com/hyperjump/somnia/internal/storage"
	"github.com/hyperjump/somnia/internal/synthesis"
	"go.uber.org/zap"
)

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFrom(ctx)
	entries, err := s.storage.ListEntries(ctx, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	latest, err := s.storage.LatestAnalysesByOwner(ctx, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]models.EntryWithAnalysis, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.EntryWithAnalysis{Entry: e, Analysis: latest[e.ID]})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in models.EntryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fileid.IsFileEntry(in.ID) {
		respondError(w, http.StatusBadRequest, "id is reserved for imported files")
		return
	}
	if in.ID != "" {
		if _, err := s.storage.GetEntry(ctx, in.ID); err == nil {
			respondError(w, http.StatusConflict, "entry already exists")
			return
		}
	}
	entry := &models.Entry{
		ID:         in.ID,
		OwnerID:    ownerFrom(ctx),
		Title:      in.Title,
		Content:    in.Content,
		OccurredAt: in.OccurredAt,
		Emotion:    in.Emotion,
		IsFavorite: in.IsFavorite,
	}
	if err := s.storage.CreateEntry(ctx, entry); err != nil {
		s.fail(w, r, err)
		return
	}
	s.refresh(r, entry.ID)
	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.ownedEntry(w, r)
	if !ok {
		return
	}
	analysis, err := s.storage.GetLatestAnalysis(r.Context(), entry.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.EntryWithAnalysis{Entry: entry, Analysis: analysis})
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.ownedEntry(w, r)
	if !ok {
		return
	}
	var upd models.EntryUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := upd.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	upd.Apply(entry)
	if err := s.storage.UpdateEntry(r.Context(), entry); err != nil {
		s.fail(w, r, err)
		return
	}
	s.refresh(r, entry.ID)
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.ownedEntry(w, r)
	if !ok {
		return
	}
	if err := s.storage.DeleteEntry(r.Context(), entry.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.indexer.RemoveEntry(r.Context(), entry.ID); err != nil {
		s.logger.Warn("Failed to remove entry from indices", zap.String("entry_id", entry.ID), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.ownedEntry(w, r)
	if !ok {
		return
	}
	analysis, err := s.pipeline.Analyze(r.Context(), entry.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.ownedEntry(w, r)
	if !ok {
		return
	}
	analysis, err := s.storage.GetLatestAnalysis(r.Context(), entry.ID)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "entry has not been analyzed")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// handleListAnalyses returns the analysis history of an entry, newest first.
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.ownedEntry(w, r)
	if !ok {
		return
	}
	analyses, err := s.storage.ListAnalyses(r.Context(), entry.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if analyses == nil {
		analyses = []*models.Analysis{}
	}
	respondJSON(w, http.StatusOK, analyses)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	hits, err := s.engine.Similar(ctx, ownerFrom(ctx), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	fuzzy, _ := strconv.ParseBool(q.Get("fuzzy"))
	ctx := r.Context()
	resp, err := s.engine.Search(ctx, ownerFrom(ctx), q.Get("q"), limit, fuzzy)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := s.pipeline.WeeklySynthesis(ctx, ownerFrom(ctx))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if report.Empty() {
		respondJSON(w, http.StatusOK, map[string]string{"message": report.Message})
		return
	}
	respondJSON(w, http.StatusOK, report.Synthesis)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := s.storage.CountEntries(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	analyses, err := s.storage.CountAnalyses(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := map[string]any{
		"entries":           entries,
		"analyses":          analyses,
		"vector_index_size": s.engine.VectorIndexSize(),
		"llm_provider":      s.config.LLM.Provider,
		"llm_model":         s.config.LLM.Model,
		"synthesis_window":  s.config.Synthesis.Window.String(),
	}
	if n, err := s.engine.KeywordDocCount(); err == nil {
		resp["keyword_index_size"] = n
	}
	if size, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.BleveIndexPath); err == nil {
		resp["disk_usage_bytes"] = size
	}
	if s.inbox != nil {
		resp["inbox_directories"] = s.inbox.Directories()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInboxList(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"directories": s.inbox.Directories()})
}

type inboxAddRequest struct {
	Path string `json:"path"`
	Scan *bool  `json:"scan,omitempty"`
}

func (s *Server) handleInboxAdd(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	var req inboxAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		respondError(w, http.StatusNotFound, "directory not found")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !info.IsDir() {
		respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	scan := req.Scan == nil || *req.Scan
	if err := s.inbox.AddDirectory(abs, scan); err != nil {
		s.fail(w, r, err)
		return
	}
	s.persistInbox()
	respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleInboxRemove(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		respondError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.inbox.RemoveDirectory(abs); err != nil {
		s.fail(w, r, err)
		return
	}
	s.persistInbox()
	respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistInbox writes the current inbox directories back to the config file.
func (s *Server) persistInbox() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Inbox.Directories = s.inbox.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("Failed to persist inbox config", zap.Error(err))
	}
}

// ownedEntry loads the {id} entry and writes a 404 unless it belongs to the caller.
func (s *Server) ownedEntry(w http.ResponseWriter, r *http.Request) (*models.Entry, bool) {
	entry, err := s.storage.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err == nil && entry.OwnerID != ownerFrom(r.Context()) {
		err = storage.ErrNotFound
	}
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return entry, true
}

func (s *Server) refresh(r *http.Request, id string) {
	if err := s.indexer.Refresh(r.Context(), id); err != nil {
		s.logger.Warn("Failed to index entry", zap.String("entry_id", id), zap.Error(err))
	}
}

// fail maps an error to its status code and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	switch status {
	case http.StatusNotFound:
		respondError(w, status, "entry not found")
	case http.StatusInternalServerError:
		respondError(w, status, "internal error")
	default:
		respondError(w, status, err.Error())
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, synthesis.ErrAggregation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be an integer")
		return 0, false
	}
	return n, true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
