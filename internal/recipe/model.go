package recipe

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifica a origem da receita.
type Type string

const (
	TypeLink     Type = "link"
	TypeManual   Type = "manual"
	TypeDocument Type = "document"
)

// Valid indica se o tipo é conhecido.
func (t Type) Valid() bool {
	switch t {
	case TypeLink, TypeManual, TypeDocument:
		return true
	}
	return false
}

const (
	MaxTitleLength       = 500
	MaxDescriptionLength = 2000
	MaxContentLength     = 100_000
	MaxTags              = 20
	MaxTagLength         = 50
)

var (
	ErrNotFound         = errors.New("receita não encontrada")
	ErrForbidden        = errors.New("sem acesso ao recurso")
	ErrUploadNotFound   = errors.New("upload não encontrado ou expirado")
	ErrCategoryNotFound = errors.New("categoria não encontrada")
	ErrNoDocument       = errors.New("receita sem documento")
)

// ValidationError descreve um campo inválido.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Recipe representa uma receita salva pelo usuário.
type Recipe struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user_id"`
	Type        Type          `json:"type"`
	Title       string        `json:"title"`
	Description *string       `json:"description,omitempty"`
	URL         *string       `json:"url,omitempty"`
	ImageURL    *string       `json:"image_url,omitempty"`
	SiteName    *string       `json:"site_name,omitempty"`
	Content     *string       `json:"content,omitempty"`
	Document    *DocumentInfo `json:"document,omitempty"`
	CategoryID  *uuid.UUID    `json:"category_id,omitempty"`
	Tags        []string      `json:"tags"`
	IsFavorite  bool          `json:"is_favorite"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// DocumentInfo descreve o arquivo associado a receitas do tipo document.
type DocumentInfo struct {
	FileName    string  `json:"file_name"`
	ContentType string  `json:"content_type"`
	Size        int64   `json:"size"`
	URL         *string `json:"url,omitempty"`
	StorageKey  string  `json:"-"`
}

// DocumentContent carrega os bytes a persistir; Content é nil quando o
// documento foi enviado ao object storage.
type DocumentContent struct {
	Info    DocumentInfo
	Content []byte
}

// Document é o resultado do download: bytes inline ou URL externa.
type Document struct {
	FileName    string
	ContentType string
	Content     []byte
	URL         string
}

// CreateInput agrupa os campos aceitos na criação.
type CreateInput struct {
	Type        Type       `json:"type"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	URL         *string    `json:"url"`
	ImageURL    *string    `json:"image_url"`
	SiteName    *string    `json:"site_name"`
	Content     *string    `json:"content"`
	UploadKey   *string    `json:"upload_key"`
	CategoryID  *uuid.UUID `json:"category_id"`
	Tags        []string   `json:"tags"`
	IsFavorite  bool       `json:"is_favorite"`
}

// UpdateInput usa ponteiros para distinguir campos omitidos.
type UpdateInput struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	URL           *string    `json:"url"`
	ImageURL      *string    `json:"image_url"`
	SiteName      *string    `json:"site_name"`
	Content       *string    `json:"content"`
	UploadKey     *string    `json:"upload_key"`
	CategoryID    *uuid.UUID `json:"category_id"`
	ClearCategory bool       `json:"clear_category"`
	Tags          *[]string  `json:"tags"`
	IsFavorite    *bool      `json:"is_favorite"`
}

// Filter restringe a listagem.
type Filter struct {
	UserID     uuid.UUID
	CategoryID *uuid.UUID
	Type       Type
	Tag        string
	Favorites  bool
	Query      string
	Limit      int
	Offset     int
}

// Page é uma página da listagem.
type Page struct {
	Items  []Recipe `json:"items"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// TagCount resume o uso de uma tag.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
