package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ─── Account Endpoints ──────────────────────────────────────────────────────
//
// PUT  /api/accounts/{ownerID}              create the account if missing
// GET  /api/accounts/{ownerID}              balance
// GET  /api/accounts/{ownerID}/transactions ledger history, newest first
// POST /api/accounts/{ownerID}/convert      turn points into value

func (s *Server) handleEnsureAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ledger.EnsureAccount(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ledger.Balance(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.ledger.History(r.Context(), chi.URLParam(r, "ownerID"), queryLimit(r, 50))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": history})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int64   `json:"points"`
		Rate   float64 `json:"rate"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	conv, err := s.ledger.Convert(r.Context(), chi.URLParam(r, "ownerID"), req.Points, req.Rate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}
