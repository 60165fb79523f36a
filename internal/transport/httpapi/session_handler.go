package httpapi

import (
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type loginRequest struct {
	Token string         `json:"token"`
	User  domain.Profile `json:"user"`
}

// login сохраняет токен и профиль, полученные UI после входа.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.User.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "token and user.id are required")
		return
	}
	if err := s.account.Store(r.Context(), req.Token, req.User); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, req.User)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.account.Clear(r.Context()); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.account.Profile(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}
