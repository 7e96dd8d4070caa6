package recipe

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gestaozabele/receitas/internal/metadata"
	"github.com/gestaozabele/receitas/internal/staging"
	"github.com/gestaozabele/receitas/internal/storage"
	"github.com/gestaozabele/receitas/internal/uploads"
	"github.com/gestaozabele/receitas/internal/util"
)

// Repository persiste receitas.
type Repository interface {
	Create(ctx context.Context, rec *Recipe, doc *DocumentContent) (*Recipe, error)
	Update(ctx context.Context, rec *Recipe, doc *DocumentContent) (*Recipe, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*Recipe, error)
	List(ctx context.Context, filter Filter) ([]Recipe, int, error)
	Delete(ctx context.Context, userID, id uuid.UUID) (*DocumentInfo, error)
	SetFavorite(ctx context.Context, userID, id uuid.UUID, favorite bool) error
	Document(ctx context.Context, userID, id uuid.UUID) (*Document, error)
	Tags(ctx context.Context, userID uuid.UUID) ([]TagCount, error)
	CategoryExists(ctx context.Context, userID, categoryID uuid.UUID) (bool, error)
}

// MetadataFetcher busca prévias de links; nil significa que nada foi obtido.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, rawURL string) *metadata.Metadata
}

// Service concentra as regras de receitas, incluindo a ingestão de uploads
// em staging e o preenchimento de metadados de links.
type Service struct {
	repo    Repository
	staging staging.Cache
	fetcher MetadataFetcher
	store   storage.DocumentStore
	logger  zerolog.Logger
}

// NewService cria o serviço; store nil mantém documentos no banco.
func NewService(repo Repository, cache staging.Cache, fetcher MetadataFetcher, store storage.DocumentStore, logger zerolog.Logger) *Service {
	return &Service{repo: repo, staging: cache, fetcher: fetcher, store: store, logger: logger}
}

// Create valida, enriquece e persiste uma nova receita.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*Recipe, error) {
	rec := &Recipe{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        Type(strings.ToLower(strings.TrimSpace(string(input.Type)))),
		Title:       strings.TrimSpace(input.Title),
		Description: cleanOptional(input.Description),
		URL:         cleanOptional(input.URL),
		ImageURL:    cleanOptional(input.ImageURL),
		SiteName:    cleanOptional(input.SiteName),
		Content:     cleanOptional(input.Content),
		CategoryID:  input.CategoryID,
		IsFavorite:  input.IsFavorite,
	}

	if !rec.Type.Valid() {
		return nil, invalid("type", "deve ser link, manual ou document")
	}

	tags, err := NormalizeTags(input.Tags)
	if err != nil {
		return nil, err
	}
	rec.Tags = tags

	if err := s.checkCategory(ctx, userID, rec.CategoryID); err != nil {
		return nil, err
	}

	var staged *stagedUpload
	switch rec.Type {
	case TypeLink:
		if rec.URL == nil {
			return nil, invalid("url", "obrigatória para receitas do tipo link")
		}
		if err := util.ValidateHTTPURL(*rec.URL, "url"); err != nil {
			return nil, invalid("url", err.Error())
		}
		s.enrichFromLink(ctx, rec)
	case TypeManual:
		if rec.Content == nil {
			return nil, invalid("content", "obrigatório para receitas manuais")
		}
	case TypeDocument:
		if input.UploadKey == nil || strings.TrimSpace(*input.UploadKey) == "" {
			return nil, invalid("upload_key", "obrigatória para receitas do tipo document")
		}
		staged, err = s.takeStaged(ctx, userID, strings.TrimSpace(*input.UploadKey))
		if err != nil {
			return nil, err
		}
		if rec.Title == "" {
			rec.Title = staged.fileName
		}
	}

	if err := validateRecipe(rec); err != nil {
		return nil, err
	}

	var doc *DocumentContent
	if staged != nil {
		if doc, err = s.persistDocument(ctx, rec, staged); err != nil {
			return nil, err
		}
	}

	created, err := s.repo.Create(ctx, rec, doc)
	if err != nil {
		s.discardStored(ctx, doc)
		return nil, err
	}

	if staged != nil {
		s.staging.Remove(ctx, staged.key)
	}

	s.logger.Info().Str("user_id", userID.String()).Str("recipe_id", created.ID.String()).Str("type", string(created.Type)).Msg("receita criada")
	return created, nil
}

// Update aplica alterações parciais; um novo upload_key substitui o documento.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, input UpdateInput) (*Recipe, error) {
	rec, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	urlChanged := false
	if input.Title != nil {
		rec.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		rec.Description = cleanOptional(input.Description)
	}
	if input.URL != nil {
		next := cleanOptional(input.URL)
		urlChanged = !sameString(rec.URL, next)
		rec.URL = next
	}
	if input.ImageURL != nil {
		rec.ImageURL = cleanOptional(input.ImageURL)
	}
	if input.SiteName != nil {
		rec.SiteName = cleanOptional(input.SiteName)
	}
	if input.Content != nil {
		rec.Content = cleanOptional(input.Content)
	}
	if input.Tags != nil {
		if rec.Tags, err = NormalizeTags(*input.Tags); err != nil {
			return nil, err
		}
	}
	if input.IsFavorite != nil {
		rec.IsFavorite = *input.IsFavorite
	}
	switch {
	case input.ClearCategory:
		rec.CategoryID = nil
	case input.CategoryID != nil:
		if err := s.checkCategory(ctx, userID, input.CategoryID); err != nil {
			return nil, err
		}
		rec.CategoryID = input.CategoryID
	}

	var staged *stagedUpload
	switch rec.Type {
	case TypeLink:
		if rec.URL == nil {
			return nil, invalid("url", "obrigatória para receitas do tipo link")
		}
		if err := util.ValidateHTTPURL(*rec.URL, "url"); err != nil {
			return nil, invalid("url", err.Error())
		}
		if urlChanged {
			s.enrichFromLink(ctx, rec)
		}
	case TypeManual:
		if rec.Content == nil {
			return nil, invalid("content", "obrigatório para receitas manuais")
		}
	case TypeDocument:
		if input.UploadKey != nil && strings.TrimSpace(*input.UploadKey) != "" {
			if staged, err = s.takeStaged(ctx, userID, strings.TrimSpace(*input.UploadKey)); err != nil {
				return nil, err
			}
		}
	}

	if rec.Title == "" && staged != nil {
		rec.Title = staged.fileName
	}
	if err := validateRecipe(rec); err != nil {
		return nil, err
	}

	var (
		doc      *DocumentContent
		previous *DocumentInfo
	)
	if staged != nil {
		previous = rec.Document
		if doc, err = s.persistDocument(ctx, rec, staged); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.Update(ctx, rec, doc)
	if err != nil {
		s.discardStored(ctx, doc)
		return nil, err
	}

	if staged != nil {
		s.staging.Remove(ctx, staged.key)
		if previous != nil && previous.StorageKey != "" && (doc == nil || previous.StorageKey != doc.Info.StorageKey) {
			s.deleteStored(ctx, previous.StorageKey)
		}
	}
	return updated, nil
}

// Get devolve uma receita do usuário.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Recipe, error) {
	return s.repo.Get(ctx, userID, id)
}

// List pagina as receitas do usuário.
func (s *Service) List(ctx context.Context, filter Filter) (*Page, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Tag = normalizeTag(filter.Tag)
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, invalid("type", "deve ser link, manual ou document")
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Recipe{}
	}
	return &Page{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Delete remove a receita e, se houver, o documento no object storage.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	doc, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if doc != nil && doc.StorageKey != "" {
		s.deleteStored(ctx, doc.StorageKey)
	}
	return nil
}

// SetFavorite marca ou desmarca a receita como favorita.
func (s *Service) SetFavorite(ctx context.Context, userID, id uuid.UUID, favorite bool) error {
	return s.repo.SetFavorite(ctx, userID, id, favorite)
}

// Document devolve o arquivo de uma receita do tipo document.
func (s *Service) Document(ctx context.Context, userID, id uuid.UUID) (*Document, error) {
	return s.repo.Document(ctx, userID, id)
}

// Tags lista as tags usadas pelo usuário com a contagem de receitas.
func (s *Service) Tags(ctx context.Context, userID uuid.UUID) ([]TagCount, error) {
	tags, err := s.repo.Tags(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []TagCount{}
	}
	return tags, nil
}

// Preview busca metadados de um link; falhas de busca resultam em prévia vazia.
func (s *Service) Preview(ctx context.Context, rawURL string) (*metadata.Metadata, bool, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := util.ValidateHTTPURL(rawURL, "url"); err != nil {
		return nil, false, invalid("url", err.Error())
	}
	md := s.fetcher.FetchMetadata(ctx, rawURL)
	if md == nil {
		return &metadata.Metadata{}, false, nil
	}
	return md, true, nil
}

// enrichFromLink completa apenas os campos que o usuário deixou vazios.
func (s *Service) enrichFromLink(ctx context.Context, rec *Recipe) {
	if rec.Title != "" && rec.Description != nil && rec.ImageURL != nil && rec.SiteName != nil {
		return
	}

	if md := s.fetcher.FetchMetadata(ctx, *rec.URL); md != nil {
		if rec.Title == "" && md.Title != nil {
			rec.Title = *md.Title
		}
		if rec.Description == nil {
			rec.Description = md.Description
		}
		if rec.ImageURL == nil {
			rec.ImageURL = md.ImageURL
		}
		if rec.SiteName == nil {
			rec.SiteName = md.SiteName
		}
	}

	if rec.Title == "" {
		rec.Title = fallbackTitle(*rec.URL)
	}
}

type stagedUpload struct {
	key      string
	fileName string
	blob     staging.Blob
}

func (s *Service) takeStaged(ctx context.Context, userID uuid.UUID, key string) (*stagedUpload, error) {
	if !uploads.OwnedBy(key, userID) {
		return nil, ErrForbidden
	}
	blob, ok := s.staging.TryGet(ctx, key)
	if !ok {
		return nil, ErrUploadNotFound
	}
	return &stagedUpload{key: key, fileName: uploads.FileName(key), blob: blob}, nil
}

func (s *Service) persistDocument(ctx context.Context, rec *Recipe, staged *stagedUpload) (*DocumentContent, error) {
	info := DocumentInfo{
		FileName:    staged.fileName,
		ContentType: staged.blob.ContentType,
		Size:        int64(len(staged.blob.Content)),
	}

	if s.store == nil {
		return &DocumentContent{Info: info, Content: staged.blob.Content}, nil
	}

	key := "recipes/" + rec.UserID.String() + "/" + rec.ID.String() + "/" + uuid.NewString() + "/" + staged.fileName
	obj, err := s.store.Put(ctx, storage.Object{
		Key:          key,
		Body:         staged.blob.Content,
		ContentType:  staged.blob.ContentType,
		CacheControl: "private, max-age=3600",
	})
	if err != nil {
		return nil, err
	}
	info.StorageKey = obj.Key
	info.URL = &obj.URL
	return &DocumentContent{Info: info}, nil
}

func (s *Service) discardStored(ctx context.Context, doc *DocumentContent) {
	if doc != nil && doc.Info.StorageKey != "" {
		s.deleteStored(ctx, doc.Info.StorageKey)
	}
}

func (s *Service) deleteStored(ctx context.Context, key string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("storage_key", key).Msg("falha ao remover documento do storage")
	}
}

func (s *Service) checkCategory(ctx context.Context, userID uuid.UUID, categoryID *uuid.UUID) error {
	if categoryID == nil {
		return nil
	}
	ok, err := s.repo.CategoryExists(ctx, userID, *categoryID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCategoryNotFound
	}
	return nil
}

func validateRecipe(rec *Recipe) error {
	if rec.Title == "" {
		return invalid("title", "obrigatório")
	}
	if utf8.RuneCountInString(rec.Title) > MaxTitleLength {
		return invalid("title", "muito longo")
	}
	if rec.Description != nil && utf8.RuneCountInString(*rec.Description) > MaxDescriptionLength {
		return invalid("description", "muito longa")
	}
	if rec.Content != nil && utf8.RuneCountInString(*rec.Content) > MaxContentLength {
		return invalid("content", "muito longo")
	}
	if rec.ImageURL != nil {
		if err := util.ValidateHTTPURL(*rec.ImageURL, "image_url"); err != nil {
			return invalid("image_url", err.Error())
		}
	}
	return nil
}

// NormalizeTags aplica trim, minúsculas e remove duplicadas mantendo a ordem.
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = normalizeTag(tag)
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return nil, invalid("tags", "tag muito longa")
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) > MaxTags {
		return nil, invalid("tags", "máximo de 20 tags")
	}
	return out, nil
}

func normalizeTag(tag string) string {
	return strings.Join(strings.Fields(strings.ToLower(tag)), " ")
}

func cleanOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fallbackTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}

// IsValidation indica erros de entrada do usuário.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
