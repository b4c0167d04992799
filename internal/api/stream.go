package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"messbook/internal/domain"
	"messbook/internal/export"
	"messbook/internal/models"
)

const streamPing = 15 * time.Second

type snapshotEvent struct {
	Kind    models.Kind      `json:"kind"`
	Seq     uint64           `json:"seq"`
	Cold    bool             `json:"cold"`
	Records []*models.Record `json:"records"`
}

// handleStream sends every snapshot of a live subscription as a
// server-sent event. The first event is the cold start.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	actor := ActorFrom(r.Context())

	sub, err := s.hub.Subscribe(r.Context(), actor, kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer sub.Unsubscribe()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.log.Warn().Err(err).Msg("streaming not supported")
		return
	}

	ping := time.NewTicker(streamPing)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case snap, ok := <-sub.Updates():
			if !ok {
				return
			}
			data, err := json.Marshal(snapshotEvent{
				Kind:    snap.Kind,
				Seq:     snap.Seq,
				Cold:    snap.Cold,
				Records: s.policy.RedactAll(actor, snap.Records),
			})
			if err != nil {
				s.log.Error().Err(err).Msg("encode snapshot")
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\nid: %d\ndata: %s\n\n", snap.Seq, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// handleExport downloads the records of a kind the caller can see as XLSX.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	actor := ActorFrom(r.Context())
	if actor.Anonymous() {
		s.fail(w, r, fmt.Errorf("%w: export needs an api key", domain.ErrUnauthorized))
		return
	}

	recs, err := s.records.List(r.Context(), actor, kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	now := time.Now()
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(kind, now)))
	if err := export.Records(w, kind, recs, now); err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Msg("export failed")
	}
}
