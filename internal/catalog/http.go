package catalog

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpmiddleware "github.com/gestaozabele/receitas/internal/http/middleware"
	"github.com/gestaozabele/receitas/internal/http/response"
)

// CatalogService é o contrato usado pelos handlers.
type CatalogService interface {
	ListCategories(ctx context.Context, userID uuid.UUID) ([]Category, error)
	CreateCategory(ctx context.Context, userID uuid.UUID, input CategoryInput) (*Category, error)
	UpdateCategory(ctx context.Context, userID, id uuid.UUID, input CategoryInput) (*Category, error)
	DeleteCategory(ctx context.Context, userID, id uuid.UUID) error
	ListCollections(ctx context.Context, userID uuid.UUID) ([]Collection, error)
	CreateCollection(ctx context.Context, userID uuid.UUID, input CollectionInput) (*Collection, error)
	GetCollection(ctx context.Context, userID, id uuid.UUID) (*CollectionDetail, error)
	DeleteCollection(ctx context.Context, userID, id uuid.UUID) error
	AddRecipe(ctx context.Context, userID, collectionID, recipeID uuid.UUID) error
	RemoveRecipe(ctx context.Context, userID, collectionID, recipeID uuid.UUID) error
}

type Handler struct {
	service CatalogService
}

func NewHandler(service CatalogService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.handleListCategories)
		r.Post("/", h.handleCreateCategory)
		r.Put("/{id}", h.handleUpdateCategory)
		r.Delete("/{id}", h.handleDeleteCategory)
	})
	r.Route("/collections", func(r chi.Router) {
		r.Get("/", h.handleListCollections)
		r.Post("/", h.handleCreateCollection)
		r.Get("/{id}", h.handleGetCollection)
		r.Delete("/{id}", h.handleDeleteCollection)
		r.Put("/{id}/recipes/{recipeID}", h.handleAddRecipe)
		r.Delete("/{id}/recipes/{recipeID}", h.handleRemoveRecipe)
	})
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListCategories(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	var input CategoryInput
	if err := response.DecodeJSON(r, &input); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "payload inválido", nil)
		return
	}
	cat, err := h.service.CreateCategory(r.Context(), userID, input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, cat)
}

func (h *Handler) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := subjectAndParam(w, r, "id")
	if !ok {
		return
	}
	var input CategoryInput
	if err := response.DecodeJSON(r, &input); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "payload inválido", nil)
		return
	}
	cat, err := h.service.UpdateCategory(r.Context(), userID, id, input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, cat)
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := subjectAndParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteCategory(r.Context(), userID, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListCollections(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListCollections(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	var input CollectionInput
	if err := response.DecodeJSON(r, &input); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "payload inválido", nil)
		return
	}
	col, err := h.service.CreateCollection(r.Context(), userID, input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, col)
}

func (h *Handler) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := subjectAndParam(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.service.GetCollection(r.Context(), userID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := subjectAndParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteCollection(r.Context(), userID, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddRecipe(w http.ResponseWriter, r *http.Request) {
	userID, collectionID, recipeID, ok := membershipParams(w, r)
	if !ok {
		return
	}
	if err := h.service.AddRecipe(r.Context(), userID, collectionID, recipeID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveRecipe(w http.ResponseWriter, r *http.Request) {
	userID, collectionID, recipeID, ok := membershipParams(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveRecipe(r.Context(), userID, collectionID, recipeID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func subject(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		response.WriteError(w, http.StatusUnauthorized, response.CodeAuth, "identificação inválida", nil)
		return uuid.Nil, false
	}
	return id, true
}

func subjectAndParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := subject(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, name+" inválido", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func membershipParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, uuid.UUID, bool) {
	userID, collectionID, ok := subjectAndParam(w, r, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}
	recipeID, err := uuid.Parse(chi.URLParam(r, "recipeID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "recipeID inválido", nil)
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}
	return userID, collectionID, recipeID, true
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, ve.Message, map[string]any{"field": ve.Field})
	case errors.Is(err, ErrNotFound):
		response.WriteError(w, http.StatusNotFound, response.CodeNotFound, "registro não encontrado", nil)
	case errors.Is(err, ErrRecipeNotFound):
		response.WriteError(w, http.StatusNotFound, response.CodeNotFound, "receita não encontrada", nil)
	case errors.Is(err, ErrConflict):
		response.WriteError(w, http.StatusConflict, response.CodeConflict, "já existe um registro com esse nome", map[string]any{"field": "name"})
	default:
		response.WriteInternal(w, r, "catalog", err)
	}
}
