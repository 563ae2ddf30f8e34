package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/krzysztofKolodziej/idea-match/internal/apperror"
	"github.com/krzysztofKolodziej/idea-match/internal/auth"
	"github.com/krzysztofKolodziej/idea-match/internal/metrics"
	"github.com/krzysztofKolodziej/idea-match/internal/service"
)

// IdeaHandler serves the public idea listing and the owner's idea
// management endpoints.
//
//   - HandleList   → GET    /api/ideas?page=&size=&sort=&filter=
//   - HandleGet    → GET    /api/ideas/{id}
//   - HandleAdd    → POST   /api/account/idea
//   - HandleUpdate → PATCH  /api/account/idea/{id}
//   - HandleDelete → DELETE /api/account/idea/{id}
//
// The /api/account routes sit behind Authenticator.RequireAuth.
type IdeaHandler struct {
	ideas  *service.IdeaService
	logger *slog.Logger
}

func NewIdeaHandler(ideas *service.IdeaService, logger *slog.Logger) *IdeaHandler {
	return &IdeaHandler{ideas: ideas, logger: logger}
}

// HandleList returns one page of idea summaries.
//
// QUERY PARAMETERS:
//
//	page    zero-based page number (default 0)
//	size    page size (default 10, max 100)
//	sort    AIP-132 order, e.g. "created_date desc, title"
//	filter  AIP-160 filter, e.g. `category = "TECHNOLOGY" AND title = "*app*"`
func (h *IdeaHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	size, err := queryInt(r, "size", service.DefaultPageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.ideas.List(r.Context(), service.PageRequest{
		Page:   page,
		Size:   size,
		Sort:   r.URL.Query().Get("sort"),
		Filter: r.URL.Query().Get("filter"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *IdeaHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	details, err := h.ideas.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// HandleAdd creates an idea owned by the caller. New ideas start as DRAFT.
func (h *IdeaHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var input service.AddIdeaInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	details, err := h.ideas.Add(r.Context(), userID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.IdeasCreated.Inc()

	w.Header().Set("Location", "/api/ideas/"+strconv.FormatInt(details.ID, 10))
	writeJSON(w, http.StatusCreated, details)
}

// HandleUpdate applies a partial update. Fields absent from the body keep
// their value; only the owner may update.
func (h *IdeaHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var input service.UpdateIdeaInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	details, err := h.ideas.Update(r.Context(), id, userID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *IdeaHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.ideas.Delete(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
