package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pdportal/pd-portal/internal/application/command"
	"github.com/pdportal/pd-portal/internal/domain/shared"
)

type registerRequest struct {
	SessionID string `json:"session_id"`
}

// handleRegister answers 201 once the registration committed, even when a
// progression step failed afterwards; the result then carries
// progression_error.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sessionID, err := shared.ParseID(req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.svc.Register.Handle(r.Context(), command.RegisterCommand{
		UserID:    identity(r).UserID,
		SessionID: sessionID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}

func (s *Server) handleMyRegistrations(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Sessions.MyRegistrations(r.Context(), identity(r).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) handleCancelRegistration(w http.ResponseWriter, r *http.Request) {
	sessionID, err := shared.ParseID(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	reg, err := s.svc.Cancel.Handle(r.Context(), command.CancelRegistrationCommand{
		UserID:    identity(r).UserID,
		SessionID: sessionID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, reg)
}
