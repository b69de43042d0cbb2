package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/libris/libris/internal/platform/httpx"
	"github.com/libris/libris/internal/shared"
)

// Handler exposes role and permission management over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers RBAC routes. Callers must authenticate beforehand.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersRead, shared.PermUsersManage, shared.PermAdminFull, shared.PermSystemAdmin))
		r.Get("/roles", h.listRoles)
		r.Get("/permissions", h.listPermissions)
		r.Get("/users/{userID}/roles", h.listUserRoles)
		r.Get("/users/{userID}/permissions", h.listUserPermissions)
		r.Get("/users/{userID}/grants", h.listUserGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersManage, shared.PermAdminFull, shared.PermSystemAdmin))
		r.Post("/users/{userID}/roles", h.assignRole)
		r.Delete("/users/{userID}/roles/{roleID}", h.removeRole)
		r.Post("/users/{userID}/grants", h.grantPermission)
		r.Delete("/users/{userID}/grants/{permission}", h.revokePermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Post("/permissions", h.createPermission)
		r.Post("/roles/{roleID}/permissions", h.assignPermissionToRole)
	})
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type grantRequest struct {
	Permission string `json:"permission" validate:"required"`
	ResourceID *int64 `json:"resource_id,omitempty" validate:"omitempty,gt=0"`
}

type createPermissionRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type rolePermissionRequest struct {
	PermissionID int64 `json:"permission_id" validate:"required,gt=0"`
}

type roleView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type permissionView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

type grantView struct {
	PermissionID int64  `json:"permission_id"`
	Permission   string `json:"permission,omitempty"`
	ResourceID   *int64 `json:"resource_id,omitempty"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleViews(roles))
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	views := make([]permissionView, 0, len(perms))
	for _, p := range perms {
		views = append(views, toPermissionView(p))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Name, req.Description)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPermissionView(perm))
}

func (h *Handler) assignPermissionToRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req rolePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AssignPermissionToRole(r.Context(), roleID, req.PermissionID); err != nil {
		h.fail(w, "assign permission to role", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roles, err := h.service.UserRoles(r.Context(), userID)
	if err != nil {
		h.fail(w, "list user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleViews(roles))
}

func (h *Handler) listUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	names, err := h.service.Resolver().Permissions(r.Context(), userID)
	if err != nil {
		h.fail(w, "list user permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": names})
}

func (h *Handler) listUserGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	grants, err := h.service.UserGrants(r.Context(), userID)
	if err != nil {
		h.fail(w, "list user grants", err)
		return
	}
	views := make([]grantView, 0, len(grants))
	for _, g := range grants {
		view := grantView{PermissionID: g.PermissionID, ResourceID: g.ResourceID}
		if name, ok := PermissionID(g.PermissionID).Name(); ok {
			view.Permission = name
		}
		views = append(views, view)
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.AssignRoleByName(r.Context(), userID, req.Role)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	h.logger.Info("role assigned", slog.Int64("user_id", userID), slog.String("role", role.Name))
	httpx.JSON(w, http.StatusOK, roleView{ID: role.ID, Name: role.Name, Description: role.Description})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, roleID); err != nil {
		h.fail(w, "remove role", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req grantRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.GrantPermission(r.Context(), userID, req.Permission, req.ResourceID); err != nil {
		h.fail(w, "grant permission", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var resourceID *int64
	if raw := r.URL.Query().Get("resource_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid resource_id")
			return
		}
		resourceID = &id
	}
	if err := h.service.RevokePermission(r.Context(), userID, chi.URLParam(r, "permission"), resourceID); err != nil {
		h.fail(w, "revoke permission", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, httpx.ErrDuplicate)
	case errors.Is(err, ErrInvalidName):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+param)
		return 0, false
	}
	return id, true
}

func toRoleViews(roles []Role) []roleView {
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, roleView{ID: role.ID, Name: role.Name, Description: role.Description})
	}
	return views
}

func toPermissionView(p Permission) permissionView {
	return permissionView{ID: p.ID, Name: p.Name, Resource: string(p.Resource), Action: p.Action, Description: p.Description}
}
