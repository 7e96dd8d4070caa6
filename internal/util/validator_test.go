package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("ana@example.com"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("sem-arroba"))
	assert.Error(t, ValidateEmail("Ana <ana@example.com>"))
	assert.Equal(t, "ana@example.com", NormalizeEmail("  Ana@Example.COM "))
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, ValidatePassword("curta"))
	assert.NoError(t, ValidatePassword("çççççççç"))
	assert.Error(t, ValidatePassword(strings.Repeat("a", 129)))
}

func TestValidateHTTPURL(t *testing.T) {
	assert.NoError(t, ValidateHTTPURL("https://example.com/receita", "url"))
	assert.NoError(t, ValidateHTTPURL(" http://example.com ", "url"))
	for _, raw := range []string{"", "ftp://example.com", "/relativo", "https://"} {
		assert.Error(t, ValidateHTTPURL(raw, "url"), raw)
	}
}

func TestRequireStringAndMaxLength(t *testing.T) {
	assert.EqualError(t, RequireString("  ", "título"), "título obrigatório")
	assert.NoError(t, MaxLength("abc", "nome", 3))
	assert.EqualError(t, MaxLength("abcd", "nome", 3), "nome muito longo")
}
