package users

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/auth"
	"github.com/castellan-platform/castellan/internal/platform/httpx"
	"github.com/castellan-platform/castellan/internal/shared"
)

// Handler manages user resource endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

const moderationRateLimit = 30

// MountRoutes registers user routes. Moderation endpoints are rate limited
// per acting user.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.search)
	r.Get("/all", h.searchAll)
	r.Post("/", h.create)
	r.Get("/{id}", h.read)
	r.Get("/{id}/avatar", h.readAvatar)
	r.Put("/{id}", h.update)
	r.Get("/{id}/groups", h.listGroups)
	r.Put("/{id}/groups/{name}", h.addGroup)
	r.Delete("/{id}/groups/{name}", h.removeGroup)
	r.Post("/{id}/impersonate", h.impersonate)

	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(moderationRateLimit, time.Minute, httprate.WithKeyFuncs(actorRateKey)))
		gr.Post("/{id}/block", h.moderate(h.service.Block))
		gr.Post("/{id}/restore", h.moderate(h.service.Restore))
		gr.Post("/{id}/approve", h.moderate(h.service.Approve))
		gr.Post("/{id}/deactivate", h.moderate(h.service.Deactivate))
		gr.Post("/{id}/activate", h.moderate(h.service.Activate))
	})
}

func actorRateKey(r *http.Request) (string, error) {
	identity := auth.IdentityFromContext(r.Context())
	if identity.ID != 0 {
		return "user:" + strconv.FormatInt(identity.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// userResponse is the API shape of an account.
type userResponse struct {
	ID              int64    `json:"id"`
	Username        string   `json:"username"`
	Email           string   `json:"email,omitempty"`
	FullName        string   `json:"full_name,omitempty"`
	Active          bool     `json:"active"`
	Confirmed       bool     `json:"confirmed"`
	Blocked         bool     `json:"blocked"`
	Visibility      string   `json:"visibility"`
	EmailVisibility string   `json:"email_visibility"`
	Roles           []string `json:"roles,omitempty"`
}

func toResponse(u *User) userResponse {
	return userResponse{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		FullName:        u.FullName,
		Active:          u.Active,
		Confirmed:       u.Confirmed,
		Blocked:         u.Blocked,
		Visibility:      u.Visibility,
		EmailVisibility: u.EmailVisibility,
		Roles:           u.Roles,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateUserInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("body", "malformed JSON payload"))
		return
	}
	if err := h.validationError(input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Create(r.Context(), auth.IdentityFromContext(r.Context()), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(user))
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Read(r.Context(), auth.IdentityFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) readAvatar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	avatar, err := h.service.ReadAvatar(r.Context(), auth.IdentityFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, avatar)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input UpdateUserInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("body", "malformed JSON payload"))
		return
	}
	if err := h.validationError(input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Update(r.Context(), auth.IdentityFromContext(r.Context()), id, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.Search(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondList(w, r, users)
}

func (h *Handler) searchAll(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.SearchAll(r.Context(), auth.IdentityFromContext(r.Context()), r.URL.Query()["role"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondList(w, r, users)
}

func (h *Handler) respondList(w http.ResponseWriter, r *http.Request, users []User) {
	page, perPage := httpx.ParsePage(r)
	p := shared.NewPagination(page, perPage, len(users))
	start, end := p.Bounds()
	out := make([]userResponse, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, toResponse(&users[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"hits":        out,
		"total":       p.Total,
		"page":        p.Page,
		"per_page":    p.PerPage,
		"total_pages": p.TotalPages,
	})
}

func (h *Handler) moderate(op func(ctx context.Context, identity access.Identity, id int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := op(r.Context(), auth.IdentityFromContext(r.Context()), id); err != nil {
			h.respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) impersonate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Impersonate(r.Context(), auth.IdentityFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	groups, err := h.service.ListGroups(r.Context(), auth.IdentityFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if groups == nil {
		groups = []GroupRef{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"hits": groups, "total": len(groups)})
}

func (h *Handler) addGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	added, err := h.service.AddGroup(r.Context(), auth.IdentityFromContext(r.Context()), id, chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"added": added})
}

func (h *Handler) removeGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	removed, err := h.service.RemoveGroup(r.Context(), auth.IdentityFromContext(r.Context()), id, chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil {
		h.logger.Debug("users request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// validationError collects every failing field into one response.
func (h *Handler) validationError(input any) error {
	err := h.validate.Struct(input)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return shared.NewValidationError("body", "invalid payload")
	}
	out := &shared.ValidationError{}
	for _, fe := range fieldErrs {
		out.Add(fe.Field(), "failed on "+fe.Tag())
	}
	return out
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		// Malformed ids are indistinguishable from missing records.
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return 0, false
	}
	return id, true
}
