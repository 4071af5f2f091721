package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/merit-works/merit/internal/app/commitment"
	"github.com/merit-works/merit/internal/domain"
)

// ─── Commitment Endpoints ───────────────────────────────────────────────────
//
// POST /api/commitments               create appointment or referral
// GET  /api/commitments/{id}          commitment state
// POST /api/commitments/{id}/confirm  counterparty confirms
// POST /api/commitments/{id}/complete business marks the session done
// POST /api/commitments/{id}/cancel   either party backs out
// POST /api/commitments/{id}/no-show  business reports a no-show
// POST /api/commitments/{id}/join     second party joins a referral
// POST /api/settlement/sweep          run one settlement sweep now

func (s *Server) handleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind           string    `json:"kind"`
		InitiatorID    string    `json:"initiator_id"`
		CounterpartyID string    `json:"counterparty_id"`
		RewardPoints   int64     `json:"reward_points"`
		Details        string    `json:"details"`
		ScheduledAt    time.Time `json:"scheduled_at"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := s.commitments.Create(r.Context(), commitment.CreateParams{
		Kind:           domain.CommitmentKind(req.Kind),
		InitiatorID:    req.InitiatorID,
		CounterpartyID: req.CounterpartyID,
		RewardPoints:   req.RewardPoints,
		Details:        req.Details,
		ScheduledAt:    req.ScheduledAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCommitment(w http.ResponseWriter, r *http.Request) {
	c, err := s.commitments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleConfirmCommitment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Details string `json:"details"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := s.commitments.Confirm(r.Context(), chi.URLParam(r, "id"), req.Details)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCompleteCommitment(w http.ResponseWriter, r *http.Request) {
	c, err := s.commitments.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCancelCommitment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}
	c, err := s.commitments.Cancel(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleNoShow(w http.ResponseWriter, r *http.Request) {
	c, err := s.commitments.MarkNoShow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CounterpartyID string `json:"counterparty_id"`
		Code           string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := s.commitments.Join(r.Context(), chi.URLParam(r, "id"), req.CounterpartyID, req.Code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	settled, errs := s.sweeper.Sweep(r.Context())
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settled": settled,
		"errors":  msgs,
	})
}
