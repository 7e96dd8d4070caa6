package uploads

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httpmiddleware "github.com/gestaozabele/receitas/internal/http/middleware"
	"github.com/gestaozabele/receitas/internal/http/response"
	"github.com/gestaozabele/receitas/internal/staging"
)

// allowedContentTypes lista os documentos aceitos como receita.
var allowedContentTypes = map[string]struct{}{
	"application/pdf":    {},
	"image/jpeg":         {},
	"image/png":          {},
	"image/webp":         {},
	"image/heic":         {},
	"text/plain":         {},
	"text/markdown":      {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

// Handler expõe presign, envio e consulta de uploads em staging.
type Handler struct {
	cache    staging.Cache
	signer   *Signer
	maxBytes int64
	logger   zerolog.Logger
}

func NewHandler(cache staging.Cache, signer *Signer, maxBytes int64, logger zerolog.Logger) *Handler {
	return &Handler{cache: cache, signer: signer, maxBytes: maxBytes, logger: logger}
}

// RegisterRoutes registra as rotas autenticadas.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/uploads/presign", h.handlePresign)
	r.Get("/uploads/status", h.handleStatus)
	r.Delete("/uploads", h.handleDiscard)
}

// RegisterPublicRoutes registra o destino da URL assinada; o token é a credencial.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Put("/uploads/{token}", h.handleUpload)
}

type presignRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func (h *Handler) handlePresign(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}

	var req presignRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "payload inválido", nil)
		return
	}

	contentType, err := normalizeContentType(req.ContentType)
	if err != nil || strings.TrimSpace(req.FileName) == "" {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "file_name e content_type obrigatórios", nil)
		return
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "tipo de arquivo não suportado", map[string]any{"content_type": contentType})
		return
	}
	if req.Size <= 0 {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "size deve ser positivo", nil)
		return
	}
	if req.Size > h.maxBytes {
		h.writeTooLarge(w)
		return
	}

	ticket, err := h.signer.Issue(NewKey(userID, req.FileName), contentType)
	if err != nil {
		response.WriteInternal(w, r, "uploads", err)
		return
	}
	ticket.MaxBytes = h.maxBytes

	h.logger.Info().Str("user_id", userID.String()).Str("key", ticket.Key).Int64("size", req.Size).Msg("upload autorizado")
	response.WriteJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	claims, err := h.signer.Verify(chi.URLParam(r, "token"))
	switch {
	case errors.Is(err, ErrExpiredToken):
		response.WriteError(w, http.StatusForbidden, response.CodeForbidden, "URL de upload expirada", nil)
		return
	case err != nil:
		response.WriteError(w, http.StatusForbidden, response.CodeForbidden, "URL de upload inválida", nil)
		return
	}

	if declared := r.Header.Get("Content-Type"); declared != "" {
		ct, err := normalizeContentType(declared)
		if err != nil || ct != claims.ContentType {
			response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "content type diferente do autorizado", map[string]any{"expected": claims.ContentType})
			return
		}
	}
	if r.ContentLength > h.maxBytes {
		h.writeTooLarge(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBytes+1))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "falha ao ler o arquivo", nil)
		return
	}

	if err := h.cache.Add(r.Context(), claims.Subject, body, claims.ContentType); err != nil {
		switch {
		case errors.Is(err, staging.ErrSizeLimitExceeded):
			h.writeTooLarge(w)
		case errors.Is(err, staging.ErrInvalidArgument):
			response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "arquivo vazio", nil)
		default:
			response.WriteInternal(w, r, "uploads", err)
		}
		return
	}

	h.logger.Info().Str("key", claims.Subject).Int("size", len(body)).Msg("upload recebido")
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"key":          claims.Subject,
		"size":         len(body),
		"content_type": claims.ContentType,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	key, ok := h.ownedKey(w, r)
	if !ok {
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"key":    key,
		"exists": h.cache.ContainsKey(r.Context(), key),
	})
}

func (h *Handler) handleDiscard(w http.ResponseWriter, r *http.Request) {
	key, ok := h.ownedKey(w, r)
	if !ok {
		return
	}
	h.cache.Remove(r.Context(), key)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ownedKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := subject(w, r)
	if !ok {
		return "", false
	}
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "key obrigatória", nil)
		return "", false
	}
	if !OwnedBy(key, userID) {
		response.WriteError(w, http.StatusForbidden, response.CodeForbidden, "sem acesso", nil)
		return "", false
	}
	return key, true
}

func (h *Handler) writeTooLarge(w http.ResponseWriter) {
	response.WriteError(w, http.StatusRequestEntityTooLarge, response.CodeTooLarge,
		fmt.Sprintf("arquivo excede o limite de %s", humanize.IBytes(uint64(h.maxBytes))),
		map[string]any{"max_bytes": h.maxBytes})
}

func subject(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		response.WriteError(w, http.StatusUnauthorized, response.CodeAuth, "identificação inválida", nil)
		return uuid.Nil, false
	}
	return id, true
}

func normalizeContentType(raw string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(mediaType), nil
}
