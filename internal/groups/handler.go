package groups

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/castellan-platform/castellan/internal/auth"
	"github.com/castellan-platform/castellan/internal/platform/httpx"
	"github.com/castellan-platform/castellan/internal/shared"
)

// Handler manages group resource endpoints. Groups are addressed by name,
// matching how role assignments reference them.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.search)
	r.Post("/", h.create)
	r.Get("/{name}", h.read)
	r.Put("/{name}", h.update)
	r.Delete("/{name}", h.delete)
}

// groupResponse is the API shape of a group.
type groupResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsManaged   bool   `json:"is_managed"`
}

func toResponse(g *Group) groupResponse {
	return groupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		IsManaged:   g.IsManaged,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateGroupInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("body", "malformed JSON payload"))
		return
	}
	if err := h.validationError(input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	group, err := h.service.Create(r.Context(), auth.IdentityFromContext(r.Context()), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(group))
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	group, err := h.service.Read(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(group))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var input UpdateGroupInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("body", "malformed JSON payload"))
		return
	}
	if err := h.validationError(input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	group, err := h.service.Update(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "name"), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(group))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "name")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Search(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	page, perPage := httpx.ParsePage(r)
	p := shared.NewPagination(page, perPage, len(groups))
	start, end := p.Bounds()
	out := make([]groupResponse, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, toResponse(&groups[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"hits":        out,
		"total":       p.Total,
		"page":        p.Page,
		"per_page":    p.PerPage,
		"total_pages": p.TotalPages,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil {
		h.logger.Debug("groups request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

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
