package catalog

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Repository persiste categorias e coleções.
type Repository interface {
	ListCategories(ctx context.Context, userID uuid.UUID) ([]Category, error)
	CreateCategory(ctx context.Context, cat *Category) (*Category, error)
	UpdateCategory(ctx context.Context, cat *Category) (*Category, error)
	DeleteCategory(ctx context.Context, userID, id uuid.UUID) error

	ListCollections(ctx context.Context, userID uuid.UUID) ([]Collection, error)
	CreateCollection(ctx context.Context, col *Collection) (*Collection, error)
	GetCollection(ctx context.Context, userID, id uuid.UUID) (*CollectionDetail, error)
	DeleteCollection(ctx context.Context, userID, id uuid.UUID) error
	AddRecipe(ctx context.Context, userID, collectionID, recipeID uuid.UUID) error
	RemoveRecipe(ctx context.Context, userID, collectionID, recipeID uuid.UUID) error
}

// Service aplica as regras de categorias e coleções.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) ListCategories(ctx context.Context, userID uuid.UUID) ([]Category, error) {
	items, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Category{}
	}
	return items, nil
}

func (s *Service) CreateCategory(ctx context.Context, userID uuid.UUID, input CategoryInput) (*Category, error) {
	cat, err := categoryFromInput(input)
	if err != nil {
		return nil, err
	}
	cat.ID = uuid.New()
	cat.UserID = userID

	created, err := s.repo.CreateCategory(ctx, cat)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID.String()).Str("category_id", created.ID.String()).Msg("categoria criada")
	return created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, userID, id uuid.UUID, input CategoryInput) (*Category, error) {
	cat, err := categoryFromInput(input)
	if err != nil {
		return nil, err
	}
	cat.ID = id
	cat.UserID = userID
	return s.repo.UpdateCategory(ctx, cat)
}

// DeleteCategory remove a categoria; as receitas ficam sem categoria.
func (s *Service) DeleteCategory(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.DeleteCategory(ctx, userID, id)
}

func (s *Service) ListCollections(ctx context.Context, userID uuid.UUID) ([]Collection, error) {
	items, err := s.repo.ListCollections(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Collection{}
	}
	return items, nil
}

func (s *Service) CreateCollection(ctx context.Context, userID uuid.UUID, input CollectionInput) (*Collection, error) {
	name, err := cleanName(input.Name)
	if err != nil {
		return nil, err
	}
	col := &Collection{ID: uuid.New(), UserID: userID, Name: name}
	if input.Description != nil {
		if desc := strings.TrimSpace(*input.Description); desc != "" {
			if utf8.RuneCountInString(desc) > MaxDescriptionLength {
				return nil, invalid("description", "muito longa")
			}
			col.Description = &desc
		}
	}
	return s.repo.CreateCollection(ctx, col)
}

func (s *Service) GetCollection(ctx context.Context, userID, id uuid.UUID) (*CollectionDetail, error) {
	detail, err := s.repo.GetCollection(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if detail.Recipes == nil {
		detail.Recipes = []RecipeSummary{}
	}
	return detail, nil
}

func (s *Service) DeleteCollection(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.DeleteCollection(ctx, userID, id)
}

// AddRecipe é idempotente: adicionar duas vezes mantém uma única entrada.
func (s *Service) AddRecipe(ctx context.Context, userID, collectionID, recipeID uuid.UUID) error {
	return s.repo.AddRecipe(ctx, userID, collectionID, recipeID)
}

func (s *Service) RemoveRecipe(ctx context.Context, userID, collectionID, recipeID uuid.UUID) error {
	return s.repo.RemoveRecipe(ctx, userID, collectionID, recipeID)
}

func categoryFromInput(input CategoryInput) (*Category, error) {
	name, err := cleanName(input.Name)
	if err != nil {
		return nil, err
	}
	cat := &Category{Name: name}
	if input.Color != nil {
		color := strings.TrimSpace(*input.Color)
		if color != "" {
			if !colorPattern.MatchString(color) {
				return nil, invalid("color", "use o formato #RRGGBB")
			}
			color = strings.ToLower(color)
			cat.Color = &color
		}
	}
	return cat, nil
}

func cleanName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", invalid("name", "obrigatório")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", invalid("name", "muito longo")
	}
	return name, nil
}

// IsValidation indica erros de entrada do usuário.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
