package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/waste-sorter/pkg/analyzer"
	"github.com/menta2k/waste-sorter/pkg/sorter"
	"github.com/menta2k/waste-sorter/pkg/store"
	"github.com/menta2k/waste-sorter/pkg/types"
)

// uploadField is the multipart field carrying the image.
const uploadField = "image"

type suggestResponse struct {
	Query       string   `json:"query"`
	Suggestions []string `json:"suggestions"`
}

type materialRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Image  analyzer.ImageInfo   `json:"image"`
	Result *sorter.ImageResult `json:"result"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"items":  s.sorter.Catalog().Len(),
	}
	if s.store != nil {
		if n, err := s.store.Count(r.Context()); err == nil {
			resp["stored_items"] = n
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	suggestions := s.sorter.Suggest(q)
	if suggestions == nil {
		suggestions = []string{}
	}
	s.writeJSON(w, http.StatusOK, suggestResponse{Query: q, Suggestions: suggestions})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		s.writeError(w, http.StatusBadRequest, "missing query", "the q parameter is required")
		return
	}
	s.writeJSON(w, http.StatusOK, s.sorter.Search(q))
}

func (s *Server) material(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	m, ok := s.sorter.ClassifyText(req.Text)
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "material classification is not configured", "")
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sorter.Categories())
}

func (s *Server) classifyImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes()+1<<20)
	file, _, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload too large", err.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, "missing image", err.Error())
		return
	}
	defer file.Close()

	img, _, info, err := s.analyzer.Inspect(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid image", err.Error())
		return
	}

	res, err := s.sorter.ClassifyImage(r.Context(), img)
	if err != nil {
		if errors.Is(err, sorter.ErrNoVision) {
			s.writeError(w, http.StatusServiceUnavailable, "image classification is not configured", "")
			return
		}
		s.logger.Error("image classification failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "image classification failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, classifyResponse{Image: info, Result: res})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	items, err := s.store.AllItems(r.Context())
	if err != nil {
		s.logger.Error("list items failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list items", err.Error())
		return
	}
	if items == nil {
		items = []types.WasteItem{}
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var item types.WasteItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(item.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "invalid item", "name is required")
		return
	}
	stored, err := s.store.AddItem(r.Context(), item)
	if err != nil {
		s.logger.Error("add item failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to add item", err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) searchItems(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		s.writeError(w, http.StatusBadRequest, "missing query", "the q parameter is required")
		return
	}
	item, err := s.store.SearchItem(r.Context(), q)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "item not found", "")
		return
	}
	if err != nil {
		s.logger.Error("search items failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "search failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "item store is not configured", "")
		return false
	}
	return true
}

func (s *Server) maxUploadBytes() int64 {
	if s.cfg.MaxUploadBytes > 0 {
		return s.cfg.MaxUploadBytes
	}
	return analyzer.DefaultConfig().MaxBytes
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{"error": message}
	if detail != "" {
		resp["detail"] = detail
	}
	s.writeJSON(w, status, resp)
}
