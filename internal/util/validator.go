package util

import (
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

// NormalizeEmail devolve o endereço em minúsculas, sem espaços.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail retorna erro para e-mails inválidos.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email obrigatório")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("email inválido")
	}
	return nil
}

// ValidatePassword verifica requisitos mínimos de senha.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength {
		return errors.New("senha deve ter pelo menos 8 caracteres")
	}
	if n > maxPasswordLength {
		return errors.New("senha deve ter no máximo 128 caracteres")
	}
	return nil
}

// RequireString garante string não vazia.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " obrigatório")
	}
	return nil
}

// MaxLength limita o tamanho em caracteres de um campo.
func MaxLength(value, field string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return errors.New(field + " muito longo")
	}
	return nil
}

// ValidateHTTPURL aceita apenas URLs absolutas http/https com host.
func ValidateHTTPURL(raw, field string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New(field + " deve ser uma URL http(s) válida")
	}
	return nil
}
