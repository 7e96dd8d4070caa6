package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
)

var (
	ErrNotFound       = errors.New("catalog: registro não encontrado")
	ErrConflict       = errors.New("catalog: nome já utilizado")
	ErrRecipeNotFound = errors.New("catalog: receita não encontrada")
)

// ValidationError indica entrada inválida em um campo.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Category agrupa receitas; cada receita tem no máximo uma.
type Category struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"-"`
	Name        string    `json:"name"`
	Color       *string   `json:"color,omitempty"`
	RecipeCount int       `json:"recipe_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Collection é uma lista livre de receitas.
type Collection struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"-"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	RecipeCount int       `json:"recipe_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RecipeSummary é a visão resumida usada no detalhe da coleção.
type RecipeSummary struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	ImageURL   *string   `json:"image_url,omitempty"`
	IsFavorite bool      `json:"is_favorite"`
	AddedAt    time.Time `json:"added_at"`
}

// CollectionDetail inclui as receitas da coleção, mais recentes primeiro.
type CollectionDetail struct {
	Collection
	Recipes []RecipeSummary `json:"recipes"`
}

type CategoryInput struct {
	Name  string  `json:"name"`
	Color *string `json:"color"`
}

type CollectionInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}
