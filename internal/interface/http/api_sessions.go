package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pdportal/pd-portal/internal/application/command"
	"github.com/pdportal/pd-portal/internal/application/query"
	"github.com/pdportal/pd-portal/internal/domain/session"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/internal/domain/user"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	from, err := dateParam(r, "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := dateParam(r, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	dates, err := shared.NewTimeRange(from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views, err := s.svc.Sessions.List(r.Context(), query.ListSessionsQuery{
		ViewerID: identity(r).UserID,
		Dates:    dates,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, views)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	caller := identity(r)
	view, err := s.svc.Sessions.Get(r.Context(), id, caller.UserID, canManageSessions(caller))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

type createSessionRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Location      string `json:"location"`
	PresenterName string `json:"presenter_name"`
	SessionDate   string `json:"session_date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Capacity      *int   `json:"capacity"`
	Publish       bool   `json:"publish"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := timeutil.ParseDate(req.SessionDate)
	if err != nil {
		s.writeError(w, r, shared.WrapError("http", "CreateSession", shared.ErrInvalidInput,
			"session_date must be YYYY-MM-DD", err))
		return
	}

	sess, err := s.svc.CreateSession.Handle(r.Context(), command.CreateSessionCommand{
		Title:         req.Title,
		Description:   req.Description,
		Location:      req.Location,
		PresenterName: req.PresenterName,
		SessionDate:   date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Capacity:      req.Capacity,
		Publish:       req.Publish,
		CreatedBy:     identity(r).UserID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, sess)
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleChangeSessionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req changeStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	status := session.Status(req.Status)
	if !status.IsValid() {
		s.writeError(w, r, shared.NewDomainError("http", "ChangeSessionStatus", shared.ErrInvalidInput,
			"unknown status "+req.Status))
		return
	}

	sess, err := s.svc.ChangeSessionStatus.Handle(r.Context(), command.ChangeSessionStatusCommand{SessionID: id, Status: status})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleRegistrants(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	registrants, err := s.svc.Sessions.Registrants(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, registrants)
}

type attendanceRequest struct {
	UserID   string `json:"user_id"`
	Attended *bool  `json:"attended"`
}

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	sessionID, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req attendanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := shared.ParseID(req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	attended := true
	if req.Attended != nil {
		attended = *req.Attended
	}

	res, err := s.svc.MarkAttendance.Handle(r.Context(), command.MarkAttendanceCommand{
		SessionID: sessionID,
		UserID:    userID,
		Attended:  attended,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func canManageSessions(id user.Identity) bool {
	return id.Role.In(user.RoleAdmin, user.RoleManager)
}

// dateParam reads an optional YYYY-MM-DD query parameter.
func dateParam(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := timeutil.ParseDate(value)
	if err != nil {
		return time.Time{}, shared.WrapError("http", "Query", shared.ErrInvalidInput, key+" must be YYYY-MM-DD", err)
	}
	return t, nil
}
