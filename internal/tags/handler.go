package tags

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/libris/libris/internal/platform/httpx"
	"github.com/libris/libris/internal/shared"
)

// Guard wraps handlers with a permission requirement.
type Guard interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
}

// Handler exposes tags over JSON.
type Handler struct {
	logger    *slog.Logger
	repo      Repository
	gate      *Gate
	guard     Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo Repository, gate *Gate, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, repo: repo, gate: gate, guard: guard, validator: validator.New()}
}

// MountRoutes registers tag routes. Callers must authenticate beforehand.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAny(shared.PermBooksRead)).Get("/", h.list)
	r.Get("/{name}/access", h.access)
	r.With(h.guard.RequireAny(shared.PermBooksManage, shared.PermAdminFull)).Post("/", h.create)
}

type createTagRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Category    string `json:"category" validate:"omitempty,oneof=content genre format custom"`
	Description string `json:"description" validate:"max=512"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Permission  string `json:"requires_permission"`
}

// View is the JSON shape of a tag.
type View struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Category           string `json:"category"`
	Description        string `json:"description,omitempty"`
	Color              string `json:"color,omitempty"`
	RequiresPermission string `json:"requires_permission,omitempty"`
}

// ToView converts a tag to its JSON shape.
func ToView(t Tag) View {
	return View{
		ID:                 t.ID,
		Name:               t.Name,
		Category:           string(t.Category),
		Description:        t.Description,
		Color:              t.Color,
		RequiresPermission: t.RequiredPermission,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tags, err := h.repo.ListTags(r.Context())
	if err != nil {
		h.logger.Error("list tags", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]View, 0, len(tags))
	for _, t := range tags {
		views = append(views, ToView(t))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	category := Category(req.Category)
	if category == "" {
		category = CategoryCustom
	}
	tag, err := h.repo.CreateTag(r.Context(), Tag{
		Name:               strings.TrimSpace(req.Name),
		Category:           category,
		Description:        req.Description,
		Color:              req.Color,
		RequiredPermission: strings.ToLower(strings.TrimSpace(req.Permission)),
	})
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusCreated, ToView(tag))
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, httpx.ErrDuplicate)
	case errors.Is(err, ErrUnknownPermission):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown permission")
	default:
		h.logger.Error("create tag", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// access reports whether the caller passes the gate of the named tag.
func (h *Handler) access(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	name := chi.URLParam(r, "name")
	decision, err := h.gate.RequireTag(r.Context(), userID, name)
	switch {
	case errors.Is(err, ErrTagNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", decision.DeniedReason)
		return
	case err != nil:
		h.logger.Error("tag access", slog.String("tag", name), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"tag":           name,
		"allowed":       decision.Allowed,
		"denied_reason": decision.DeniedReason,
	})
}
