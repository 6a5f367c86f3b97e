package httpapi

import (
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/middleware"
)

type signupRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CurrencyCode string `json:"currencyCode"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type authResponse struct {
	AccessToken string                     `json:"accessToken"`
	User        *goIdentity.UserProjection `json:"user,omitempty"`
}

// POST /auth/signup
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.engine.Signup(r.Context(), goIdentity.SignupInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		CurrencyCode: req.CurrencyCode,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.setRefreshCookie(w, res.RefreshToken)
	respondJSON(w, http.StatusCreated, authResponse{AccessToken: res.AccessToken, User: &res.User})
}

// POST /auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.setRefreshCookie(w, res.RefreshToken)
	respondJSON(w, http.StatusOK, authResponse{AccessToken: res.AccessToken, User: &res.User})
}

// POST /auth/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := refreshCookie(r)
	if token == "" {
		respondKind(w, goIdentity.KindUnauthorized, "missing refresh token")
		return
	}

	pair, err := s.engine.Refresh(r.Context(), token)
	if err != nil {
		if goIdentity.KindOf(err) == goIdentity.KindUnauthorized {
			s.clearRefreshCookie(w)
		}
		s.respondError(w, r, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	respondJSON(w, http.StatusOK, authResponse{AccessToken: pair.AccessToken})
}

// POST /auth/logout. The cookie is cleared even when no session matched.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	if err := s.engine.Logout(r.Context(), userID, refreshCookie(r)); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// POST /auth/forgot-password always answers 202 for a well-formed email.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ForgotPassword(r.Context(), req.Email); err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the address is registered, a reset link is on its way",
	})
}

// POST /auth/reset-password
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// POST /auth/verify-email
func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.VerifyEmail(r.Context(), req.Token); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /auth/resend-verification
func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	if err := s.engine.ResendVerification(r.Context(), userID); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	user, err := s.engine.WhoAmI(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"user": user})
}

// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Health(r.Context())

	status := http.StatusOK
	body := map[string]any{
		"status":          "ok",
		"credentialStore": componentStatus(report.CredentialStore),
		"sessionStore":    componentStatus(report.SessionStore),
	}
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	respondJSON(w, status, body)
}

func componentStatus(err error) string {
	if err != nil {
		return "down"
	}
	return "up"
}
