// Package storage guarda documentos de receitas em object storage compatível com S3.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/gestaozabele/receitas/internal/config"
)

const (
	ProviderDatabase = "database"
	ProviderS3       = "s3"
	ProviderR2       = "r2"
)

// ErrObjectNotFound indica que a chave não existe no bucket.
var ErrObjectNotFound = errors.New("storage: objeto não encontrado")

// Object descreve um documento a ser persistido.
type Object struct {
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
}

// StoredObject descreve o artefato persistido.
type StoredObject struct {
	Key  string
	URL  string
	ETag string
}

// DocumentStore é implementado por backends que guardam bytes fora do Postgres.
type DocumentStore interface {
	Put(ctx context.Context, obj Object) (*StoredObject, error)
	Delete(ctx context.Context, key string) error
}

// New devolve nil quando os documentos ficam no próprio banco.
func New(cfg config.StorageConfig) (DocumentStore, error) {
	switch cfg.Provider {
	case "", ProviderDatabase:
		return nil, nil
	case ProviderS3, ProviderR2:
		store, err := NewS3Store(S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			PublicDomain: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("storage: provider %q não suportado", cfg.Provider)
	}
}
