package domains

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/castellan-platform/castellan/internal/auth"
	"github.com/castellan-platform/castellan/internal/platform/httpx"
	"github.com/castellan-platform/castellan/internal/shared"
)

// Handler manages domain moderation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers domain routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.search)
	r.Post("/", h.create)
	r.Get("/{name}", h.read)
	r.Put("/{name}", h.update)
	r.Delete("/{name}", h.delete)
}

// domainResponse is the API shape of a moderated domain.
type domainResponse struct {
	ID            int64  `json:"id"`
	Domain        string `json:"domain"`
	TLD           string `json:"tld"`
	Status        string `json:"status"`
	Category      string `json:"category,omitempty"`
	Flagged       bool   `json:"flagged"`
	FlaggedSource string `json:"flagged_source,omitempty"`
	NumUsers      int64  `json:"num_users"`
	NumActive     int64  `json:"num_active"`
	NumInactive   int64  `json:"num_inactive"`
}

func toResponse(d *Domain) domainResponse {
	return domainResponse{
		ID:            d.ID,
		Domain:        d.Name,
		TLD:           d.TLD,
		Status:        d.Status,
		Category:      d.Category,
		Flagged:       d.Flagged,
		FlaggedSource: d.FlaggedSource,
		NumUsers:      d.NumUsers,
		NumActive:     d.NumActive,
		NumInactive:   d.NumInactive,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateDomainInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("body", "malformed JSON payload"))
		return
	}
	if err := h.validationError(input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	domain, err := h.service.Create(r.Context(), auth.IdentityFromContext(r.Context()), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(domain))
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	domain, err := h.service.Read(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(domain))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var input UpdateDomainInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("body", "malformed JSON payload"))
		return
	}
	if err := h.validationError(input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	domain, err := h.service.Update(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "name"), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(domain))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "name")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	domains, err := h.service.Search(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	page, perPage := httpx.ParsePage(r)
	p := shared.NewPagination(page, perPage, len(domains))
	start, end := p.Bounds()
	out := make([]domainResponse, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, toResponse(&domains[i]))
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
		h.logger.Debug("domains request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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
