// Package uploads emite URLs assinadas para envio de documentos e recebe os
// bytes no cache de staging até que a receita seja criada.
package uploads

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UploadAudience distingue tickets de upload dos tokens de sessão.
const UploadAudience = "receitas-upload"

var (
	ErrInvalidToken = errors.New("uploads: token inválido")
	ErrExpiredToken = errors.New("uploads: token expirado")
)

// Claims é o conteúdo assinado de um ticket. Subject carrega a chave do staging.
type Claims struct {
	ContentType string `json:"ct"`
	jwt.RegisteredClaims
}

// Ticket é devolvido ao cliente para que ele envie o arquivo.
type Ticket struct {
	Key         string    `json:"key"`
	UploadURL   string    `json:"upload_url"`
	Method      string    `json:"method"`
	ContentType string    `json:"content_type"`
	MaxBytes    int64     `json:"max_bytes"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Signer emite e verifica tickets JWT HS256 com segredo próprio.
type Signer struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewSigner cria o assinador; baseURL é a raiz pública da API.
func NewSigner(secret []byte, baseURL string, ttl time.Duration) *Signer {
	return &Signer{
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue gera o ticket para uma chave já montada por NewKey.
func (s *Signer) Issue(key, contentType string) (Ticket, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl).Truncate(time.Second)
	token, err := s.Sign(Claims{
		ContentType: contentType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   key,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{
		Key:         key,
		UploadURL:   s.baseURL + "/uploads/" + token,
		Method:      "PUT",
		ContentType: contentType,
		ExpiresAt:   exp,
	}, nil
}

// Sign assina as claims; a audience é sempre UploadAudience.
func (s *Signer) Sign(c Claims) (string, error) {
	if c.Subject == "" || c.ContentType == "" {
		return "", errors.New("uploads: chave e content type obrigatórios")
	}
	c.Audience = jwt.ClaimStrings{UploadAudience}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Verify devolve as claims de um token íntegro e ainda válido.
func (s *Signer) Verify(tokenString string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(UploadAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	var c Claims
	token, err := parser.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrExpiredToken
	case err != nil, !token.Valid:
		return Claims{}, ErrInvalidToken
	}
	if c.Subject == "" || c.ContentType == "" {
		return Claims{}, ErrInvalidToken
	}
	return c, nil
}
