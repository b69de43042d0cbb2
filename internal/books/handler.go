package books

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/libris/libris/internal/platform/httpx"
	"github.com/libris/libris/internal/shared"
	"github.com/libris/libris/internal/tags"
)

// Guard wraps handlers with a permission requirement.
type Guard interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
}

// Handler exposes books over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers book routes. Callers must authenticate beforehand.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermBooksRead))
		r.Get("/", h.list)
		r.Get("/{bookID}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermBooksWrite, shared.PermBooksManage, shared.PermAdminFull))
		r.Post("/{bookID}/tags", h.addTag)
		r.Delete("/{bookID}/tags/{tagID}", h.removeTag)
	})
}

type bookView struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Author      string      `json:"author"`
	Description string      `json:"description,omitempty"`
	ISBN        string      `json:"isbn,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	Tags        []tags.View `json:"tags"`
}

type listResponse struct {
	Books   []bookView `json:"books"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

type addTagRequest struct {
	TagID int64 `json:"tag_id" validate:"required,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	p := shared.NewPagination(page, perPage, 0)
	list, err := h.service.List(r.Context(), userID, ListFilter{
		Search: strings.TrimSpace(q.Get("q")),
		Limit:  p.PerPage,
		Offset: p.Offset(),
	})
	if err != nil {
		h.fail(w, "list books", err)
		return
	}
	views := make([]bookView, 0, len(list))
	for _, b := range list {
		views = append(views, toView(b))
	}
	httpx.JSON(w, http.StatusOK, listResponse{Books: views, Page: p.Page, PerPage: p.PerPage})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	bookID, ok := pathID(w, r, "bookID")
	if !ok {
		return
	}
	book, err := h.service.Get(r.Context(), userID, bookID)
	if err != nil {
		h.fail(w, "get book", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(book))
}

func (h *Handler) addTag(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	bookID, ok := pathID(w, r, "bookID")
	if !ok {
		return
	}
	var req addTagRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	book, err := h.service.AddTag(r.Context(), userID, bookID, req.TagID)
	if err != nil {
		h.fail(w, "add book tag", err)
		return
	}
	h.logger.Info("book tagged", slog.Int64("book_id", bookID), slog.Int64("tag_id", req.TagID), slog.Int64("user_id", userID))
	httpx.JSON(w, http.StatusOK, toView(book))
}

func (h *Handler) removeTag(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	bookID, ok := pathID(w, r, "bookID")
	if !ok {
		return
	}
	tagID, ok := pathID(w, r, "tagID")
	if !ok {
		return
	}
	if err := h.service.RemoveTag(r.Context(), userID, bookID, tagID); err != nil {
		h.fail(w, "remove book tag", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var denied *DeniedError
	switch {
	case errors.As(err, &denied):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", denied.Reason)
	case IsNotFound(err):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, tags.ErrUnknownPermission):
		h.logger.Error(op, slog.String("detail", "gate misconfigured"), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "unknown permission")
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

func toView(b Book) bookView {
	view := bookView{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		ISBN:        b.ISBN,
		CreatedAt:   b.CreatedAt,
		Tags:        make([]tags.View, 0, len(b.Tags)),
	}
	for _, t := range b.Tags {
		view.Tags = append(view.Tags, tags.ToView(t))
	}
	return view
}
