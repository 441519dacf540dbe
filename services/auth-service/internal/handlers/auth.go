package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/smiledesk/smiledesk/libs/auth"
	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/services/auth-service/internal/staff"
)

type AuthHandler struct {
	svc    *staff.Service
	jwks   func() []auth.JWK
	logger *slog.Logger
}

func NewAuthHandler(svc *staff.Service, jwks func() []auth.JWK, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, jwks: jwks, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type createStaffRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=dentist assistant admin"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type memberResponse struct {
	ID        string `json:"id"`
	ClinicID  string `json:"clinic_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

func toMember(m staff.Member) memberResponse {
	return memberResponse{
		ID:        m.ID,
		ClinicID:  m.ClinicID,
		Email:     m.Email,
		Name:      m.Name,
		Role:      m.Role,
		Active:    m.Active,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toTokens(t staff.Tokens) tokenResponse {
	return tokenResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(t.ExpiresIn.Seconds()),
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	tokens, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTokens(tokens))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	tokens, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTokens(tokens))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the caller's account. It must run behind httpx.RequireAuth.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	m, err := h.svc.Get(r.Context(), claims.UserID())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toMember(m))
}

// Staff serves GET (list) and POST (create) on the staff collection. It must run behind an
// admin-only middleware.
func (h *AuthHandler) Staff(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.svc.List(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		items := make([]memberResponse, 0, len(list))
		for _, m := range list {
			items = append(items, toMember(m))
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var req createStaffRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		m, err := h.svc.Create(r.Context(), staff.NewMember{Email: req.Email, Name: req.Name, Password: req.Password, Role: req.Role})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toMember(m))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	keys := h.jwks()
	if len(keys) == 0 {
		http.Error(w, "jwks not available", http.StatusNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, auth.JWKSet{Keys: keys})
}

func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, staff.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, staff.ErrInactive):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, staff.ErrDuplicateEmail):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, staff.ErrInvalidRole):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, staff.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("auth request failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
