package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/libris/libris/internal/platform/httpx"
	"github.com/libris/libris/internal/shared"
)

// PermissionLister resolves the permission names of a user for /auth/me.
type PermissionLister interface {
	Permissions(ctx context.Context, userID int64) ([]string, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	perms     PermissionLister
	validator *validator.Validate
	loginMW   []func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance. loginMW wraps only the login route.
func NewHandler(logger *slog.Logger, service *Service, perms PermissionLister, loginMW ...func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		perms:     perms,
		validator: validator.New(),
		loginMW:   loginMW,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.loginMW...).Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(Middleware{Service: h.service, Logger: h.logger}.RequireAuth)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresAt int64  `json:"expires_at"`
	UserID    int64  `json:"user_id"`
}

type meResponse struct {
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	Username    string   `json:"username,omitempty"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", verrs[0].Field()+" is invalid")
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, r.RemoteAddr, r.UserAgent())
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("login", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		ExpiresAt: result.Claims.ExpiresAt,
		UserID:    result.User.ID,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.Logout(r.Context(), p.Token); err != nil {
		h.logger.Warn("remove session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	resp := meResponse{UserID: p.UserID, Email: p.Email, Username: p.Username, Permissions: []string{}}
	if h.perms != nil {
		perms, err := h.perms.Permissions(r.Context(), p.UserID)
		if err != nil {
			h.logger.Error("resolve permissions", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		resp.Permissions = perms
	}
	httpx.JSON(w, http.StatusOK, resp)
}
