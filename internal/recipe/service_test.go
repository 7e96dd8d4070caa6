package recipe

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestaozabele/receitas/internal/metadata"
	"github.com/gestaozabele/receitas/internal/staging"
	"github.com/gestaozabele/receitas/internal/storage"
	"github.com/gestaozabele/receitas/internal/uploads"
)

type memoryRepo struct {
	mu         sync.Mutex
	recipes    map[uuid.UUID]*Recipe
	content    map[uuid.UUID][]byte
	categories map[uuid.UUID]uuid.UUID
	failCreate error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		recipes:    map[uuid.UUID]*Recipe{},
		content:    map[uuid.UUID][]byte{},
		categories: map[uuid.UUID]uuid.UUID{},
	}
}

func (m *memoryRepo) apply(rec *Recipe, doc *DocumentContent) *Recipe {
	cp := *rec
	cp.Tags = append([]string{}, rec.Tags...)
	if doc != nil {
		info := doc.Info
		cp.Document = &info
		m.content[rec.ID] = doc.Content
	}
	cp.UpdatedAt = time.Now()
	m.recipes[rec.ID] = &cp
	out := cp
	return &out
}

func (m *memoryRepo) Create(ctx context.Context, rec *Recipe, doc *DocumentContent) (*Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return nil, m.failCreate
	}
	rec.CreatedAt = time.Now()
	return m.apply(rec, doc), nil
}

func (m *memoryRepo) Update(ctx context.Context, rec *Recipe, doc *DocumentContent) (*Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.recipes[rec.ID]; !ok || existing.UserID != rec.UserID {
		return nil, ErrNotFound
	}
	return m.apply(rec, doc), nil
}

func (m *memoryRepo) Get(ctx context.Context, userID, id uuid.UUID) (*Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recipes[id]
	if !ok || rec.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryRepo) List(ctx context.Context, filter Filter) ([]Recipe, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Recipe
	for _, rec := range m.recipes {
		if rec.UserID == filter.UserID && (!filter.Favorites || rec.IsFavorite) {
			out = append(out, *rec)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) Delete(ctx context.Context, userID, id uuid.UUID) (*DocumentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recipes[id]
	if !ok || rec.UserID != userID {
		return nil, ErrNotFound
	}
	delete(m.recipes, id)
	return rec.Document, nil
}

func (m *memoryRepo) SetFavorite(ctx context.Context, userID, id uuid.UUID, favorite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recipes[id]
	if !ok || rec.UserID != userID {
		return ErrNotFound
	}
	rec.IsFavorite = favorite
	return nil
}

func (m *memoryRepo) Document(ctx context.Context, userID, id uuid.UUID) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recipes[id]
	if !ok || rec.UserID != userID {
		return nil, ErrNotFound
	}
	if rec.Document == nil {
		return nil, ErrNoDocument
	}
	return &Document{FileName: rec.Document.FileName, ContentType: rec.Document.ContentType, Content: m.content[id]}, nil
}

func (m *memoryRepo) Tags(ctx context.Context, userID uuid.UUID) ([]TagCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, rec := range m.recipes {
		if rec.UserID == userID {
			for _, tag := range rec.Tags {
				counts[tag]++
			}
		}
	}
	var out []TagCount
	for name, n := range counts {
		out = append(out, TagCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryRepo) CategoryExists(ctx context.Context, userID, categoryID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.categories[categoryID]
	return ok && owner == userID, nil
}

type stubFetcher struct {
	result *metadata.Metadata
	calls  []string
}

func (f *stubFetcher) FetchMetadata(ctx context.Context, rawURL string) *metadata.Metadata {
	f.calls = append(f.calls, rawURL)
	return f.result
}

type fakeStore struct {
	objects map[string]storage.Object
	deleted []string
	failPut error
}

func (f *fakeStore) Put(ctx context.Context, obj storage.Object) (*storage.StoredObject, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	if f.objects == nil {
		f.objects = map[string]storage.Object{}
	}
	f.objects[obj.Key] = obj
	return &storage.StoredObject{Key: obj.Key, URL: "https://cdn.example.com/" + obj.Key}, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

type fixture struct {
	svc     *Service
	repo    *memoryRepo
	cache   *staging.MemoryCache
	fetcher *stubFetcher
	user    uuid.UUID
}

func newFixture(t *testing.T, store storage.DocumentStore) *fixture {
	t.Helper()
	cache, err := staging.NewMemoryCache(staging.Limits{MaxItemBytes: 1024, MaxTotalBytes: 4096, TTL: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	f := &fixture{repo: newMemoryRepo(), cache: cache, fetcher: &stubFetcher{}, user: uuid.New()}
	f.svc = NewService(f.repo, cache, f.fetcher, store, zerolog.Nop())
	return f
}

func (f *fixture) stage(t *testing.T, fileName, contentType, body string) string {
	t.Helper()
	key := uploads.NewKey(f.user, fileName)
	require.NoError(t, f.cache.Add(context.Background(), key, []byte(body), contentType))
	return key
}

func strPtr(s string) *string { return &s }

func TestCreateLinkFillsMissingFieldsFromMetadata(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.result = &metadata.Metadata{
		Title:       strPtr("Bolo de Fubá"),
		Description: strPtr("Receita da vó"),
		ImageURL:    strPtr("https://example.com/bolo.jpg"),
		SiteName:    strPtr("Example"),
	}

	rec, err := f.svc.Create(context.Background(), f.user, CreateInput{
		Type:        "LINK",
		URL:         strPtr(" https://example.com/bolo "),
		Description: strPtr("Minha anotação"),
		Tags:        []string{" Doces ", "doces", "Bolo  de  Fubá"},
	})
	require.NoError(t, err)

	assert.Equal(t, TypeLink, rec.Type)
	assert.Equal(t, "Bolo de Fubá", rec.Title)
	assert.Equal(t, "Minha anotação", *rec.Description)
	assert.Equal(t, "https://example.com/bolo.jpg", *rec.ImageURL)
	assert.Equal(t, "Example", *rec.SiteName)
	assert.Equal(t, []string{"doces", "bolo de fubá"}, rec.Tags)
	assert.Equal(t, []string{"https://example.com/bolo"}, f.fetcher.calls)
}

func TestCreateLinkSkipsFetchWhenComplete(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Create(context.Background(), f.user, CreateInput{
		Type:        TypeLink,
		Title:       "Pão",
		URL:         strPtr("https://example.com/pao"),
		Description: strPtr("d"),
		ImageURL:    strPtr("https://example.com/p.jpg"),
		SiteName:    strPtr("Example"),
	})
	require.NoError(t, err)
	assert.Empty(t, f.fetcher.calls)
}

func TestCreateLinkSurvivesMetadataFailure(t *testing.T) {
	f := newFixture(t, nil)

	rec, err := f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeLink, URL: strPtr("https://receitas.example.org/x")})
	require.NoError(t, err)
	assert.Equal(t, "receitas.example.org", rec.Title)
	assert.Nil(t, rec.Description)
	assert.Len(t, f.fetcher.calls, 1)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, nil)
	tooMany := make([]string, MaxTags+1)
	for i := range tooMany {
		tooMany[i] = strings.Repeat("t", i+1)
	}

	tests := []struct {
		name  string
		input CreateInput
		field string
	}{
		{"tipo desconhecido", CreateInput{Type: "video", Title: "x"}, "type"},
		{"link sem url", CreateInput{Type: TypeLink, Title: "x"}, "url"},
		{"link ftp", CreateInput{Type: TypeLink, Title: "x", URL: strPtr("ftp://example.com")}, "url"},
		{"manual sem conteúdo", CreateInput{Type: TypeManual, Title: "x", Content: strPtr("   ")}, "content"},
		{"manual sem título", CreateInput{Type: TypeManual, Content: strPtr("farinha")}, "title"},
		{"document sem upload", CreateInput{Type: TypeDocument}, "upload_key"},
		{"tags demais", CreateInput{Type: TypeManual, Title: "x", Content: strPtr("c"), Tags: tooMany}, "tags"},
		{"imagem inválida", CreateInput{Type: TypeManual, Title: "x", Content: strPtr("c"), ImageURL: strPtr("javascript:x")}, "image_url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), f.user, tc.input)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.True(t, IsValidation(err))
		})
	}
	assert.Empty(t, f.repo.recipes)
}

func TestCreateRejectsForeignCategory(t *testing.T) {
	f := newFixture(t, nil)
	foreign := uuid.New()
	f.repo.categories[foreign] = uuid.New()

	_, err := f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeManual, Title: "x", Content: strPtr("c"), CategoryID: &foreign})
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	own := uuid.New()
	f.repo.categories[own] = f.user
	rec, err := f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeManual, Title: "x", Content: strPtr("c"), CategoryID: &own})
	require.NoError(t, err)
	assert.Equal(t, own, *rec.CategoryID)
}

func TestCreateDocumentTransfersStagedUpload(t *testing.T) {
	f := newFixture(t, nil)
	key := f.stage(t, "Bolo da Vó.pdf", "application/pdf", "%PDF-1.7 bolo")

	rec, err := f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeDocument, UploadKey: &key})
	require.NoError(t, err)

	assert.Equal(t, "Bolo-da-Vo.pdf", rec.Title)
	require.NotNil(t, rec.Document)
	assert.Equal(t, "application/pdf", rec.Document.ContentType)
	assert.Equal(t, int64(len("%PDF-1.7 bolo")), rec.Document.Size)
	assert.False(t, f.cache.ContainsKey(context.Background(), key))

	doc, err := f.svc.Document(context.Background(), f.user, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 bolo", string(doc.Content))
}

func TestCreateDocumentErrors(t *testing.T) {
	f := newFixture(t, nil)

	foreign := uploads.NewKey(uuid.New(), "x.pdf")
	require.NoError(t, f.cache.Add(context.Background(), foreign, []byte("x"), "application/pdf"))
	_, err := f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeDocument, UploadKey: &foreign})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.True(t, f.cache.ContainsKey(context.Background(), foreign))

	missing := uploads.NewKey(f.user, "sumiu.pdf")
	_, err = f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeDocument, UploadKey: &missing})
	assert.ErrorIs(t, err, ErrUploadNotFound)
}

func TestCreateDocumentKeepsStagedBlobWhenPersistFails(t *testing.T) {
	store := &fakeStore{}
	f := newFixture(t, store)
	f.repo.failCreate = errors.New("db fora")
	key := f.stage(t, "a.pdf", "application/pdf", "conteudo")

	_, err := f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeDocument, UploadKey: &key, Title: "A"})
	require.Error(t, err)

	assert.True(t, f.cache.ContainsKey(context.Background(), key))
	assert.Len(t, store.deleted, 1)
	assert.Empty(t, store.objects)
}

func TestCreateDocumentUsesObjectStorage(t *testing.T) {
	store := &fakeStore{}
	f := newFixture(t, store)
	key := f.stage(t, "foto.png", "image/png", "png-bytes")

	rec, err := f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeDocument, UploadKey: &key, Title: "Foto"})
	require.NoError(t, err)
	require.NotNil(t, rec.Document)
	require.NotNil(t, rec.Document.URL)
	assert.True(t, strings.HasPrefix(rec.Document.StorageKey, "recipes/"+f.user.String()+"/"+rec.ID.String()+"/"))
	assert.Equal(t, "png-bytes", string(store.objects[rec.Document.StorageKey].Body))
	assert.Nil(t, f.repo.content[rec.ID])

	store.failPut = errors.New("bucket indisponível")
	key2 := f.stage(t, "outra.png", "image/png", "x")
	_, err = f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeDocument, UploadKey: &key2, Title: "Outra"})
	require.Error(t, err)
	assert.True(t, f.cache.ContainsKey(context.Background(), key2))
}

func TestUpdateReplacesDocumentAndCleansOldObject(t *testing.T) {
	store := &fakeStore{}
	f := newFixture(t, store)
	key := f.stage(t, "v1.pdf", "application/pdf", "v1")
	rec, err := f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeDocument, UploadKey: &key, Title: "Doc"})
	require.NoError(t, err)
	oldKey := rec.Document.StorageKey

	key2 := f.stage(t, "v2.pdf", "application/pdf", "v2")
	updated, err := f.svc.Update(context.Background(), f.user, rec.ID, UpdateInput{UploadKey: &key2})
	require.NoError(t, err)

	assert.Equal(t, "Doc", updated.Title)
	assert.Equal(t, "v2.pdf", updated.Document.FileName)
	assert.NotEqual(t, oldKey, updated.Document.StorageKey)
	assert.Contains(t, store.deleted, oldKey)
	assert.False(t, f.cache.ContainsKey(context.Background(), key2))
}

func TestUpdateLinkRefetchesOnlyWhenURLChanges(t *testing.T) {
	f := newFixture(t, nil)
	rec, err := f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeLink, Title: "Pão", URL: strPtr("https://a.example.com/")})
	require.NoError(t, err)
	require.Len(t, f.fetcher.calls, 1)

	_, err = f.svc.Update(context.Background(), f.user, rec.ID, UpdateInput{Title: strPtr("Pão caseiro")})
	require.NoError(t, err)
	assert.Len(t, f.fetcher.calls, 1)

	f.fetcher.result = &metadata.Metadata{Title: strPtr("Ignorado"), SiteName: strPtr("B")}
	updated, err := f.svc.Update(context.Background(), f.user, rec.ID, UpdateInput{URL: strPtr("https://b.example.com/")})
	require.NoError(t, err)
	assert.Len(t, f.fetcher.calls, 2)
	assert.Equal(t, "Pão caseiro", updated.Title)
	assert.Equal(t, "B", *updated.SiteName)

	_, err = f.svc.Update(context.Background(), f.user, rec.ID, UpdateInput{URL: strPtr("")})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestUpdateAndDeleteRespectOwnership(t *testing.T) {
	f := newFixture(t, nil)
	rec, err := f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeManual, Title: "x", Content: strPtr("c")})
	require.NoError(t, err)

	other := uuid.New()
	_, err = f.svc.Update(context.Background(), other, rec.ID, UpdateInput{Title: strPtr("y")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), other, rec.ID), ErrNotFound)
	assert.ErrorIs(t, f.svc.SetFavorite(context.Background(), other, rec.ID, true), ErrNotFound)

	require.NoError(t, f.svc.SetFavorite(context.Background(), f.user, rec.ID, true))
	page, err := f.svc.List(context.Background(), Filter{UserID: f.user, Favorites: true, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 50, page.Limit)

	require.NoError(t, f.svc.Delete(context.Background(), f.user, rec.ID))
	_, err = f.svc.Get(context.Background(), f.user, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRejectsUnknownType(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.List(context.Background(), Filter{UserID: f.user, Type: "video"})
	assert.True(t, IsValidation(err))

	page, err := f.svc.List(context.Background(), Filter{UserID: f.user})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
}

func TestTags(t *testing.T) {
	f := newFixture(t, nil)
	for _, tags := range [][]string{{"doce", "bolo"}, {"doce"}} {
		_, err := f.svc.Create(context.Background(), f.user, CreateInput{Type: TypeManual, Title: "x", Content: strPtr("c"), Tags: tags})
		require.NoError(t, err)
	}

	tags, err := f.svc.Tags(context.Background(), f.user)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{{Name: "bolo", Count: 1}, {Name: "doce", Count: 2}}, tags)

	empty, err := f.svc.Tags(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, empty)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, nil)

	_, _, err := f.svc.Preview(context.Background(), "file:///etc/passwd")
	assert.True(t, IsValidation(err))

	md, found, err := f.svc.Preview(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, md.Title)

	f.fetcher.result = &metadata.Metadata{Title: strPtr("T")}
	md, found, err = f.svc.Preview(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "T", *md.Title)
}

func TestNormalizeTags(t *testing.T) {
	tags, err := NormalizeTags([]string{"", "  ", "Vegano", "VEGANO", "sem   glúten"})
	require.NoError(t, err)
	assert.Equal(t, []string{"vegano", "sem glúten"}, tags)

	_, err = NormalizeTags([]string{strings.Repeat("x", MaxTagLength+1)})
	assert.True(t, IsValidation(err))

	tags, err = NormalizeTags(nil)
	require.NoError(t, err)
	assert.NotNil(t, tags)
}
