package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, EncryptKey(testKeyHex, "hunter2", path))

	got, err := DecryptKey(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, EncryptKey(testKeyHex, "hunter2", path))

	_, err := DecryptKey(path, "wrong")
	require.Error(t, err)
}

func TestLoadKeyRawTakesPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, EncryptKey(testKeyHex, "hunter2", path))

	got, err := LoadKey("deadbeef", path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", got)
}

func TestLoadKeyRequiresSomeSource(t *testing.T) {
	_, err := LoadKey("", "", "")
	require.Error(t, err)

	_, err = LoadKey("", "/tmp/nope.json", "")
	require.Error(t, err)
}

func TestSignerAddressFromKnownKey(t *testing.T) {
	s, err := NewSigner(testKeyHex, 137)
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", s.Address().Hex())
}
