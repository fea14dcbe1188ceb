package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2HashService_HashAndVerify(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("4821")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v="), "hash should start with $argon2id$v=")

	match, err := svc.Verify("4821", hash)
	require.NoError(t, err)
	assert.True(t, match, "correct pin should verify")
}

func TestArgon2HashService_VerifyWrongPin(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("123456")
	require.NoError(t, err)

	match, err := svc.Verify("654321", hash)
	require.NoError(t, err)
	assert.False(t, match, "wrong pin should not verify")
}

func TestArgon2HashService_UniqueSalts(t *testing.T) {
	svc := NewArgon2HashService()

	hash1, err := svc.Hash("0000")
	require.NoError(t, err)
	hash2, err := svc.Hash("0000")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2, "same pin should produce different hashes (different salts)")
}

func TestArgon2HashService_HashContainsParams(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("9999")
	require.NoError(t, err)
	assert.Contains(t, hash, "m=65536,t=1,p=4", "hash should contain Argon2id params")
}

func TestArgon2HashService_VerifyUsesStoredParams(t *testing.T) {
	cheap := &Argon2HashService{params: argon2Params{memory: 8 * 1024, time: 2, threads: 1, keyLen: 16}}

	hash, err := cheap.Hash("2468")
	require.NoError(t, err)

	match, err := NewArgon2HashService().Verify("2468", hash)
	require.NoError(t, err)
	assert.True(t, match)
}

func TestArgon2HashService_VerifyMalformed(t *testing.T) {
	svc := NewArgon2HashService()

	tests := []struct {
		name string
		hash string
	}{
		{"garbage", "not-a-valid-hash"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$a2V5"},
		{"wrong version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$a2V5"},
		{"bad salt", "$argon2id$v=19$m=65536,t=1,p=4$!!!$a2V5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify("1234", tt.hash)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errMalformedHash))
		})
	}
}
