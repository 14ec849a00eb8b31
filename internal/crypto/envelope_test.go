package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(fill byte) []byte {
	key := make([]byte, MasterKeyLen)
	for i := range key {
		key[i] = fill
	}
	return key
}

func TestSealOpen_Roundtrip(t *testing.T) {
	key := testKey(0x42)
	plaintext := []byte("super secret signing key material")

	blob, err := Seal(key, plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "super secret")

	out, err := Open(key, blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestSeal_NonceIsPerRecord(t *testing.T) {
	key := testKey(0x42)
	a, err := Seal(key, []byte("same plaintext"))
	require.NoError(t, err)
	b, err := Seal(key, []byte("same plaintext"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpen_WrongKeyFails(t *testing.T) {
	blob, err := Seal(testKey(0x01), []byte("payload"))
	require.NoError(t, err)

	_, err = Open(testKey(0x02), blob)
	assert.Error(t, err)
}

func TestOpen_RejectsUnknownVersion(t *testing.T) {
	key := testKey(0x42)
	blob, err := Seal(key, []byte("payload"))
	require.NoError(t, err)

	blob[0] = 9
	_, err = Open(key, blob)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "envelope version")
}

func TestOpen_RejectsTruncatedBlob(t *testing.T) {
	_, err := Open(testKey(0x42), []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestSeal_RejectsShortKey(t *testing.T) {
	_, err := Seal([]byte("short"), []byte("payload"))
	assert.Error(t, err)
}

func TestDeriveMasterKey_HexTakesPrecedence(t *testing.T) {
	want := testKey(0xAB)
	key, err := DeriveMasterKey(hex.EncodeToString(want), "passphrase", "salt")
	require.NoError(t, err)
	assert.Equal(t, want, key)

	// 0x prefix is accepted.
	key, err = DeriveMasterKey("0x"+hex.EncodeToString(want), "", "")
	require.NoError(t, err)
	assert.Equal(t, want, key)
}

func TestDeriveMasterKey_Passphrase(t *testing.T) {
	a, err := DeriveMasterKey("", "correct horse battery staple", "pepper")
	require.NoError(t, err)
	require.Len(t, a, MasterKeyLen)

	// Deterministic for the same inputs, different for another salt.
	b, err := DeriveMasterKey("", "correct horse battery staple", "pepper")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := DeriveMasterKey("", "correct horse battery staple", "other")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestDeriveMasterKey_Errors(t *testing.T) {
	_, err := DeriveMasterKey("not-hex!", "", "")
	assert.Error(t, err)

	_, err = DeriveMasterKey("abcd", "", "") // valid hex, wrong length
	assert.Error(t, err)

	_, err = DeriveMasterKey("", "passphrase", "")
	assert.Error(t, err)
}

func TestDeriveMasterKey_UnconfiguredReturnsNil(t *testing.T) {
	key, err := DeriveMasterKey("", "", "")
	require.NoError(t, err)
	assert.Nil(t, key)
}
