package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNonZeroOr(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, fallback, nonZeroOr(time.Time{}, fallback))

	explicit := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, explicit, nonZeroOr(explicit, fallback))
}

func TestTermKey_StableAndDistinct(t *testing.T) {
	a := termKey("running shoes")
	b := termKey("running shoes")
	c := termKey("hiking boots")

	assert.Equal(t, a, b, "same term must hash to the same key")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32, "md5 hex digest is 32 characters")
}

func TestArangoConfig_Validate(t *testing.T) {
	valid := ArangoConfig{URL: "http://localhost:8529", Username: "root", Database: "keywordintel"}
	assert.NoError(t, valid.Validate())

	missingURL := valid
	missingURL.URL = ""
	assert.Error(t, missingURL.Validate())

	missingUsername := valid
	missingUsername.Username = ""
	assert.Error(t, missingUsername.Validate())

	missingDatabase := valid
	missingDatabase.Database = ""
	assert.Error(t, missingDatabase.Validate())
}
