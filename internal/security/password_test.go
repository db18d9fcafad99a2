package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var fastParams = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestArgon2RoundTrip(t *testing.T) {
	hash, err := HashPasswordWithParams("correct horse", fastParams)
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=8192,t=1,p=1$")

	ok, err := VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("battery staple", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_SaltsEachHash(t *testing.T) {
	a, err := HashPasswordWithParams("same", fastParams)
	require.NoError(t, err)
	b, err := HashPasswordWithParams("same", fastParams)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPassword_Bcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := VerifyPassword("legacy-password", string(hash))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", string(hash))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPassword_Malformed(t *testing.T) {
	for _, hash := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=1,t=1,p=1$onlysalt",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
	} {
		ok, err := VerifyPassword("pw", hash)
		assert.Error(t, err, "hash %q", hash)
		assert.False(t, ok)
	}
}
