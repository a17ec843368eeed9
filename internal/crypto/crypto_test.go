package crypto

import (
	"bytes"
	"crypto/aes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	key, err := GenerateKeyPair()
	require.NoError(t, err)

	pemKey, err := PublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(pemKey, "-----BEGIN PUBLIC KEY-----"))

	parsed, err := ParsePublicKeyPEM(pemKey)
	require.NoError(t, err)
	require.True(t, key.PublicKey.Equal(parsed))
}

func TestParsePublicKeyPEMRejectsGarbage(t *testing.T) {
	_, err := ParsePublicKeyPEM("not a key")
	require.Error(t, err)

	_, err = ParsePublicKeyPEM("-----BEGIN PUBLIC KEY-----\nQUFBQQ==\n-----END PUBLIC KEY-----\n")
	require.Error(t, err)
}

func TestFingerprintIsStable(t *testing.T) {
	key, err := GenerateKeyPair()
	require.NoError(t, err)

	fp := Fingerprint(&key.PublicKey)
	require.Len(t, fp, 16)
	require.Equal(t, fp, Fingerprint(&key.PublicKey))

	other, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NotEqual(t, fp, Fingerprint(&other.PublicKey))
}

func TestWrapUnwrapKey(t *testing.T) {
	key, err := GenerateKeyPair()
	require.NoError(t, err)

	session, err := NewSessionKey()
	require.NoError(t, err)
	require.Len(t, session, 32)

	wrapped, err := WrapKey(&key.PublicKey, session)
	require.NoError(t, err)

	unwrapped, err := UnwrapKey(key, wrapped)
	require.NoError(t, err)
	require.Equal(t, session, unwrapped)

	// A different private key cannot unwrap it.
	other, err := GenerateKeyPair()
	require.NoError(t, err)
	_, err = UnwrapKey(other, wrapped)
	require.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := NewSessionKey()
	require.NoError(t, err)

	for _, size := range []int{1, 15, 16, 17, 1000} {
		plaintext := bytes.Repeat([]byte{0x42}, size)

		ciphertext, iv, err := Encrypt(plaintext, key)
		require.NoError(t, err)
		require.Len(t, iv, aes.BlockSize)
		require.Zero(t, len(ciphertext)%aes.BlockSize)
		// PKCS7 always pads, so ciphertext is strictly longer.
		require.Greater(t, len(ciphertext), size-1)

		decrypted, err := Decrypt(ciphertext, key, iv)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	key, err := NewSessionKey()
	require.NoError(t, err)

	plaintext := []byte("same input")
	c1, iv1, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	c2, iv2, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	require.NotEqual(t, iv1, iv2)
	require.NotEqual(t, c1, c2)
}

func TestDecryptRejectsBadInput(t *testing.T) {
	key, err := NewSessionKey()
	require.NoError(t, err)

	ciphertext, iv, err := Encrypt([]byte("hello"), key)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext[:15], key, iv)
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = Decrypt(nil, key, iv)
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = Decrypt(ciphertext, key, iv[:8])
	require.Error(t, err)

	// Decrypting with the wrong key surfaces as a padding failure (or,
	// rarely, garbage that fails elsewhere).
	wrongKey, err := NewSessionKey()
	require.NoError(t, err)
	if plaintext, err := Decrypt(ciphertext, wrongKey, iv); err == nil {
		require.NotEqual(t, []byte("hello"), plaintext)
	}
}

func TestUnpadValidation(t *testing.T) {
	// Valid single-block padding.
	block := append(bytes.Repeat([]byte{0x01}, 12), 4, 4, 4, 4)
	out, err := unpad(block, aes.BlockSize)
	require.NoError(t, err)
	require.Len(t, out, 12)

	// Zero padding byte.
	bad := append(bytes.Repeat([]byte{0x01}, 15), 0)
	_, err = unpad(bad, aes.BlockSize)
	require.ErrorIs(t, err, ErrInvalidPadding)

	// Padding byte larger than the block.
	bad = append(bytes.Repeat([]byte{0x01}, 15), 17)
	_, err = unpad(bad, aes.BlockSize)
	require.ErrorIs(t, err, ErrInvalidPadding)

	// Inconsistent padding bytes.
	bad = append(bytes.Repeat([]byte{0x01}, 12), 4, 3, 4, 4)
	_, err = unpad(bad, aes.BlockSize)
	require.ErrorIs(t, err, ErrInvalidPadding)

	// Empty and misaligned input.
	_, err = unpad(nil, aes.BlockSize)
	require.ErrorIs(t, err, ErrInvalidPadding)
	_, err = unpad(bytes.Repeat([]byte{0x04}, 15), aes.BlockSize)
	require.ErrorIs(t, err, ErrInvalidPadding)
}

func TestDigest(t *testing.T) {
	require.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Digest([]byte("hello")))
	require.NotEqual(t, Digest([]byte("a")), Digest([]byte("b")))
}
