// Package response padroniza o envelope JSON {data, error} usado pela API.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Códigos de erro expostos aos clientes.
const (
	CodeValidation = "VALIDATION"
	CodeAuth       = "AUTH"
	CodeForbidden  = "FORBIDDEN"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeTooLarge   = "TOO_LARGE"
	CodeRateLimit  = "RATE_LIMIT"
	CodeInternal   = "INTERNAL"
)

// SuccessEnvelope padroniza respostas com dados.
type SuccessEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

// ErrorEnvelope padroniza respostas de erro.
type ErrorEnvelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
}

// ErrorBody descreve falhas normalizadas.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// WriteJSON escreve envelope de sucesso.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessEnvelope{Data: data, Error: nil})
}

// WriteError escreve envelope de erro e mantém formato consistente.
func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Data:  nil,
		Error: &ErrorBody{Code: code, Message: message, Details: details},
	})
}

// WriteInternal registra a causa e devolve mensagem genérica.
func WriteInternal(w http.ResponseWriter, r *http.Request, component string, err error) {
	logger := log.Ctx(r.Context())
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}
	logger.Error().Err(err).Str("component", component).Str("path", r.URL.Path).Msg("erro interno")
	WriteError(w, http.StatusInternalServerError, CodeInternal, "erro interno", nil)
}

// DecodeJSON lê o corpo da requisição em dst.
func DecodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
