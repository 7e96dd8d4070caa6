package recipe

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	httpmiddleware "github.com/gestaozabele/receitas/internal/http/middleware"
	"github.com/gestaozabele/receitas/internal/http/response"
	"github.com/gestaozabele/receitas/internal/metadata"
)

// RecipeService é o contrato usado pelos handlers.
type RecipeService interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*Recipe, error)
	Update(ctx context.Context, userID, id uuid.UUID, input UpdateInput) (*Recipe, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*Recipe, error)
	List(ctx context.Context, filter Filter) (*Page, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	SetFavorite(ctx context.Context, userID, id uuid.UUID, favorite bool) error
	Document(ctx context.Context, userID, id uuid.UUID) (*Document, error)
	Tags(ctx context.Context, userID uuid.UUID) ([]TagCount, error)
	Preview(ctx context.Context, rawURL string) (*metadata.Metadata, bool, error)
}

// Handler expõe as rotas de receitas.
type Handler struct {
	service RecipeService
}

func NewHandler(service RecipeService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/recipes", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Post("/metadata", h.handlePreview)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Put("/{id}/favorite", h.handleFavorite(true))
		r.Delete("/{id}/favorite", h.handleFavorite(false))
		r.Get("/{id}/document", h.handleDocument)
	})
	r.Get("/tags", h.handleTags)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectAsUUID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := Filter{
		UserID:    userID,
		Type:      Type(strings.ToLower(q.Get("type"))),
		Tag:       q.Get("tag"),
		Favorites: q.Get("favorites") == "true" || q.Get("favorites") == "1",
		Query:     q.Get("q"),
	}
	if raw := q.Get("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "category_id inválido", nil)
			return
		}
		filter.CategoryID = &id
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "limit inválido", nil)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "offset inválido", nil)
		return
	}

	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectAsUUID(w, r)
	if !ok {
		return
	}

	var input CreateInput
	if err := response.DecodeJSON(r, &input); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "payload inválido", nil)
		return
	}

	rec, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := subjectAndID(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := subjectAndID(w, r)
	if !ok {
		return
	}

	var input UpdateInput
	if err := response.DecodeJSON(r, &input); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "payload inválido", nil)
		return
	}

	rec, err := h.service.Update(r.Context(), userID, id, input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := subjectAndID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFavorite(favorite bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, id, ok := subjectAndID(w, r)
		if !ok {
			return
		}

		if err := h.service.SetFavorite(r.Context(), userID, id, favorite); err != nil {
			writeDomainError(w, r, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "is_favorite": favorite})
	}
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := subjectAndID(w, r)
	if !ok {
		return
	}

	doc, err := h.service.Document(r.Context(), userID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if doc.URL != "" && len(doc.Content) == 0 {
		http.Redirect(w, r, doc.URL, http.StatusFound)
		return
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": doc.FileName}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}

type previewRequest struct {
	URL string `json:"url"`
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	if _, ok := subjectAsUUID(w, r); !ok {
		return
	}

	var req previewRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "payload inválido", nil)
		return
	}

	md, found, err := h.service.Preview(r.Context(), req.URL)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"found":       found,
		"title":       md.Title,
		"description": md.Description,
		"image_url":   md.ImageURL,
		"site_name":   md.SiteName,
	})
}

func (h *Handler) handleTags(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectAsUUID(w, r)
	if !ok {
		return
	}

	tags, err := h.service.Tags(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func subjectAsUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		response.WriteError(w, http.StatusUnauthorized, response.CodeAuth, "identificação inválida", nil)
		return uuid.Nil, false
	}
	return id, true
}

func subjectAndID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := subjectAsUUID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "receita inválida", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("valor inválido: %q", raw)
	}
	return v, nil
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &ve):
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, ve.Message, map[string]any{"field": ve.Field})
	case errors.Is(err, ErrNotFound):
		response.WriteError(w, http.StatusNotFound, response.CodeNotFound, "receita não encontrada", nil)
	case errors.Is(err, ErrNoDocument):
		response.WriteError(w, http.StatusNotFound, response.CodeNotFound, "receita sem documento", nil)
	case errors.Is(err, ErrForbidden):
		response.WriteError(w, http.StatusForbidden, response.CodeForbidden, "sem acesso", nil)
	case errors.Is(err, ErrUploadNotFound):
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "upload não encontrado ou expirado", map[string]any{"field": "upload_key"})
	case errors.Is(err, ErrCategoryNotFound):
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "categoria não encontrada", map[string]any{"field": "category_id"})
	case errors.As(err, &pgErr) && pgErr.Code == "23503":
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "referência inválida", nil)
	default:
		response.WriteInternal(w, r, "recipe", err)
	}
}
