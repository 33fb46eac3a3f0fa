package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pdportal/pd-portal/internal/application/command"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/internal/domain/user"
)

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.svc.Signup.Handle(r.Context(), command.SignupCommand{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.svc.Login.Handle(r.Context(), command.LoginCommand{Email: req.Email, Password: req.Password})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.svc.ChangeRole.Handle(r.Context(), command.ChangeRoleCommand{UserID: userID, Role: req.Role})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// identity returns the caller set by authMiddleware.
func identity(r *http.Request) user.Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}
