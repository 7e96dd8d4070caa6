package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestaozabele/receitas/internal/config"
)

type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

func newTestStore(t *testing.T, status int) (*S3Store, *[]recordedRequest) {
	t.Helper()
	var got []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, recordedRequest{method: r.Method, path: r.URL.EscapedPath(), header: r.Header.Clone(), body: body})
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	store, err := NewS3Store(S3Config{
		Endpoint:  srv.URL + "/",
		Region:    "auto",
		Bucket:    "receitas",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "segredo",
	})
	require.NoError(t, err)
	store.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return store, &got
}

func TestS3StorePutSignsRequest(t *testing.T) {
	store, got := newTestStore(t, http.StatusOK)

	obj, err := store.Put(context.Background(), Object{
		Key:         "users/u1/abc/receita da vó.pdf",
		Body:        []byte("%PDF-1.7"),
		ContentType: "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", obj.ETag)
	assert.True(t, strings.HasSuffix(obj.URL, "/receitas/users/u1/abc/receita%20da%20v%C3%B3.pdf"), obj.URL)

	require.Len(t, *got, 1)
	req := (*got)[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/receitas/users/u1/abc/receita%20da%20v%C3%B3.pdf", req.path)
	assert.Equal(t, "%PDF-1.7", string(req.body))
	assert.Equal(t, "application/pdf", req.header.Get("Content-Type"))
	assert.Equal(t, "20260301T120000Z", req.header.Get("X-Amz-Date"))

	auth := req.header.Get("Authorization")
	assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260301/auto/s3/aws4_request"), auth)
	assert.Contains(t, auth, "SignedHeaders=content-type;host;x-amz-content-sha256;x-amz-date")
	assert.Regexp(t, `Signature=[0-9a-f]{64}$`, auth)
}

func TestS3StorePutIsDeterministic(t *testing.T) {
	store, got := newTestStore(t, http.StatusOK)
	obj := Object{Key: "k", Body: []byte("x"), ContentType: "text/plain"}

	_, err := store.Put(context.Background(), obj)
	require.NoError(t, err)
	_, err = store.Put(context.Background(), obj)
	require.NoError(t, err)

	assert.Equal(t, (*got)[0].header.Get("Authorization"), (*got)[1].header.Get("Authorization"))
}

func TestS3StorePutRejectsInvalidInput(t *testing.T) {
	store, got := newTestStore(t, http.StatusOK)

	_, err := store.Put(context.Background(), Object{Key: " ", Body: []byte("x")})
	assert.Error(t, err)
	_, err = store.Put(context.Background(), Object{Key: "k"})
	assert.Error(t, err)
	assert.Empty(t, *got)
}

func TestS3StorePutPropagatesRemoteFailure(t *testing.T) {
	store, _ := newTestStore(t, http.StatusForbidden)

	_, err := store.Put(context.Background(), Object{Key: "k", Body: []byte("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestS3StoreDelete(t *testing.T) {
	store, got := newTestStore(t, http.StatusNoContent)

	require.NoError(t, store.Delete(context.Background(), "/users/u1/doc.pdf"))
	require.Len(t, *got, 1)
	assert.Equal(t, http.MethodDelete, (*got)[0].method)
	assert.Equal(t, "/receitas/users/u1/doc.pdf", (*got)[0].path)
	assert.Equal(t, emptyBodyHash, (*got)[0].header.Get("X-Amz-Content-Sha256"))
}

func TestS3StoreDeleteMissingIsNotError(t *testing.T) {
	store, _ := newTestStore(t, http.StatusNotFound)
	assert.NoError(t, store.Delete(context.Background(), "k"))
}

func TestS3StorePublicDomain(t *testing.T) {
	store, _ := newTestStore(t, http.StatusOK)
	store.cfg.PublicDomain = "https://cdn.example.com/"

	obj, err := store.Put(context.Background(), Object{Key: "a/b.png", Body: []byte("x"), ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a/b.png", obj.URL)
}

func TestNewSelectsProvider(t *testing.T) {
	store, err := New(config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = New(config.StorageConfig{Provider: ProviderS3})
	assert.Error(t, err)

	store, err = New(config.StorageConfig{
		Provider:    ProviderR2,
		S3Endpoint:  "https://conta.r2.cloudflarestorage.com",
		S3Region:    "auto",
		S3Bucket:    "b",
		S3AccessKey: "a",
		S3SecretKey: "s",
	})
	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, store)

	_, err = New(config.StorageConfig{Provider: "ftp"})
	assert.Error(t, err)

	_, err = NewS3Store(S3Config{Endpoint: "conta.r2", Region: "auto", Bucket: "b", AccessKey: "a", SecretKey: "s"})
	assert.Error(t, err)
}

func TestURIEncode(t *testing.T) {
	assert.Equal(t, "/a%20b/c~d", uriEncode("/a b/c~d", false))
	assert.Equal(t, "%2Fa", uriEncode("/a", true))
	assert.Equal(t, "/", canonicalPath(""))
}
