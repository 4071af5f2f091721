package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ─── Mission Endpoints ──────────────────────────────────────────────────────
//
// POST   /api/missions                          fund a mission pool
// GET    /api/missions/{missionID}              pool state
// DELETE /api/missions/{missionID}              cancel + refund remainder
// POST   /api/missions/{missionID}/participations a customer applies
// GET    /api/participations/{id}               participation state
// POST   /api/participations/{id}/approve       business approves, pays out
// POST   /api/participations/{id}/reject        business rejects, reverses

func (s *Server) handleFundMission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BusinessID    string `json:"business_id"`
		MissionID     string `json:"mission_id"`
		PointsPerSlot int64  `json:"points_per_slot"`
		MaxSlots      int    `json:"max_slots"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.BusinessID == "" || req.MissionID == "" {
		writeError(w, http.StatusBadRequest, "business_id and mission_id are required")
		return
	}
	pool, err := s.missions.Fund(r.Context(), req.BusinessID, req.MissionID, req.PointsPerSlot, req.MaxSlots)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
	pool, err := s.missions.Get(r.Context(), chi.URLParam(r, "missionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleCancelMission(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "cancelled by business"
	}
	pool, refund, err := s.missions.Cancel(r.Context(), chi.URLParam(r, "missionID"), reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pool":            pool,
		"points_refunded": refund,
	})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	p, err := s.participations.Apply(r.Context(), chi.URLParam(r, "missionID"), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetParticipation(w http.ResponseWriter, r *http.Request) {
	p, err := s.participations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int64 `json:"points"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.participations.Approve(r.Context(), chi.URLParam(r, "id"), req.Points)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Feedback string `json:"feedback"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.participations.Reject(r.Context(), chi.URLParam(r, "id"), req.Feedback)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"participation":   res.Participation,
		"points_reversed": res.Reversed,
		"shortfall":       res.Shortfall,
	})
}
