package uploads

import (
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

const maxFileNameLength = 120

// NewKey monta users/{userId}/{uuid}/{arquivo}.
func NewKey(userID uuid.UUID, fileName string) string {
	return "users/" + userID.String() + "/" + uuid.NewString() + "/" + SanitizeFileName(fileName)
}

// OwnedBy indica se a chave pertence ao usuário.
func OwnedBy(key string, userID uuid.UUID) bool {
	prefix := "users/" + userID.String() + "/"
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	rest := strings.TrimPrefix(key, prefix)
	return rest != "" && !strings.Contains(rest, "..")
}

// FileName extrai o nome do arquivo da chave.
func FileName(key string) string {
	return path.Base(key)
}

// SanitizeFileName remove acentos, separadores e caracteres de controle.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))

	var b strings.Builder
	lastDash := false
	for _, r := range norm.NFD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_'):
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
	}

	out := strings.Trim(b.String(), "-.")
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	if len(out) > maxFileNameLength {
		ext := path.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		out = strings.TrimRight(out[:maxFileNameLength-len(ext)], "-.") + ext
	}
	if out == "" {
		return "arquivo"
	}
	return out
}
