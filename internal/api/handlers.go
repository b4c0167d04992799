package api

import (
	"fmt"
	"net/http"
	"strings"

	"messbook/internal/domain"
	"messbook/internal/models"
)

func kindParam(r *http.Request) (models.Kind, error) {
	kind := models.Kind(strings.TrimSpace(r.URL.Query().Get("kind")))
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown or missing kind", domain.ErrInvalidInput)
	}
	return kind, nil
}

func (s *HTTPServer) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var in models.NewRecord
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.records.Create(r.Context(), ActorFrom(r.Context()), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *HTTPServer) handleListRecords(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recs, err := s.records.List(r.Context(), ActorFrom(r.Context()), kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *HTTPServer) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.Get(r.Context(), ActorFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.Status `json:"status"`
		Remark string        `json:"remark"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Status == "" {
		s.fail(w, r, fmt.Errorf("%w: status is required", domain.ErrInvalidInput))
		return
	}
	rec, err := s.records.Transition(r.Context(), ActorFrom(r.Context()), r.PathValue("id"), body.Status, body.Remark)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *HTTPServer) handleReveal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	phone, err := s.records.Reveal(r.Context(), ActorFrom(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "phone": phone})
}

func (s *HTTPServer) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Delete(r.Context(), ActorFrom(r.Context()), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListListings(w http.ResponseWriter, r *http.Request) {
	ls, err := s.listings.List(r.Context(), ActorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": ls})
}

func (s *HTTPServer) handleUnits(w http.ResponseWriter, r *http.Request) {
	units, err := s.listings.Units(r.Context(), ActorFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": units})
}

func (s *HTTPServer) handleSetHidden(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hidden *bool `json:"hidden"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Hidden == nil {
		s.fail(w, r, fmt.Errorf("%w: hidden is required", domain.ErrInvalidInput))
		return
	}
	id := r.PathValue("id")
	if err := s.listings.SetHidden(r.Context(), ActorFrom(r.Context()), id, *body.Hidden); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "hidden": *body.Hidden})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delta int64 `json:"delta"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	id := r.PathValue("id")
	count, err := s.listings.AdjustAvailability(r.Context(), ActorFrom(r.Context()), id, body.Delta)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "available_count": count})
}

func (s *HTTPServer) handleAppendGallery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	id := r.PathValue("id")
	urls, err := s.listings.AppendGalleryImage(r.Context(), ActorFrom(r.Context()), id, body.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "gallery_urls": urls})
}

func (s *HTTPServer) handleSetGallery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URLs []string `json:"urls"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.listings.SetGallery(r.Context(), ActorFrom(r.Context()), id, body.URLs); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "gallery_urls": body.URLs})
}
