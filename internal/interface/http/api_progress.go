package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pdportal/pd-portal/internal/application/command"
	"github.com/pdportal/pd-portal/internal/application/query"
	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/shared"
)

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Progress.Handle(r.Context(), identity(r).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

type renamePetRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenamePet(w http.ResponseWriter, r *http.Request) {
	var req renamePetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	pet, err := s.svc.RenamePet.Handle(r.Context(), command.RenamePetCommand{UserID: identity(r).UserID, Name: req.Name})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pet)
}

type grantExperienceRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) handleGrantExperience(w http.ResponseWriter, r *http.Request) {
	var req grantExperienceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.svc.GrantExperience.Handle(r.Context(), command.GrantExperienceCommand{
		UserID: identity(r).UserID,
		Amount: req.Amount,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleExperienceHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entries, err := s.svc.Pets.ExperienceHistory(r.Context(), identity(r).UserID, progression.NormalizeHistoryLimit(limit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}

func (s *Server) handleAchievementCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, query.AchievementCatalog())
}

type awardAchievementRequest struct {
	Type string `json:"type"`
}

func (s *Server) handleAwardAchievement(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req awardAchievementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.svc.AwardAchievement.Handle(r.Context(), command.AwardAchievementCommand{
		UserID: userID,
		Type:   progression.AchievementType(req.Type),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Awarded {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, res)
}
