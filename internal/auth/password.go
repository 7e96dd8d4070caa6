package auth

import (
	"errors"

	"github.com/alexedwards/argon2id"
)

var errEmptyPassword = errors.New("senha vazia")

var params = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Hash gera um hash Argon2id com os parâmetros embutidos.
func Hash(password string) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}
	return argon2id.CreateHash(password, params)
}

// Verify compara a senha com o hash; hash malformado é erro, senha errada é false.
func Verify(password, encodedHash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, encodedHash)
}
