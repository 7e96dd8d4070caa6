package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxNameLength = 120

var (
	// ErrInvalidCredentials indica falha na autenticação.
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	// ErrEmailTaken indica e-mail já cadastrado.
	ErrEmailTaken = errors.New("email já cadastrado")
	ErrNotFound   = errors.New("usuário não encontrado")
)

// ValidationError indica entrada inválida em um campo.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// User é a conta dona das receitas.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// RegisterInput reúne os dados de cadastro.
type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginResult representa o retorno de login, cadastro e refresh.
type LoginResult struct {
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
	User          *User
}
