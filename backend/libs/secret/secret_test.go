package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	sealed, err := Seal(key, "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hunter2")

	parsed, err := ParseKey(key.String())
	require.NoError(t, err)

	plain, err := Open(parsed, sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestOpen_WrongKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	sealed, err := Seal(key, "hunter2")
	require.NoError(t, err)

	_, err = Open(other, sealed)
	assert.ErrorIs(t, err, ErrOpenFailed)
}

func TestParseKey_WrongLength(t *testing.T) {
	_, err := ParseKey("c2hvcnQ=")
	assert.Error(t, err)
}
