package accounts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
)

func TestHashPassword(t *testing.T) {
	_, err := accounts.HashPassword("")
	assert.ErrorIs(t, err, accounts.ErrNoEmptyString)

	hash, err := accounts.HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", hash)

	assert.NoError(t, accounts.ComparePasswordAndHash("correct horse battery", hash))
	assert.ErrorIs(t, accounts.ComparePasswordAndHash("wrong", hash), accounts.ErrMismatchedHashAndPassword)
	assert.ErrorIs(t, accounts.ComparePasswordAndHash("anything", ""), accounts.ErrMismatchedHashAndPassword)
}
