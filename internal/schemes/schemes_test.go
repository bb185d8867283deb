package schemes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSHA256Checksummer_VerifyRoundTrip(t *testing.T) {
	cs := SHA256Checksummer{}
	data := []byte("hello ozone")
	sum := cs.Sum(data)
	require.True(t, cs.Verify(data, sum))
	require.False(t, cs.Verify([]byte("tampered"), sum))
}

func TestCRC32Checksummer_VerifyRoundTrip(t *testing.T) {
	cs := CRC32Checksummer{}
	data := []byte("hello ozone")
	sum := cs.Sum(data)
	require.Len(t, sum, 4)
	require.True(t, cs.Verify(data, sum))
}

func TestChaCha20Poly1305_EncryptDecryptRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	enc, err := NewChaCha20Poly1305(key)
	require.NoError(t, err)

	plain := []byte("the quick brown fox jumps over the lazy dog")
	ciphertext, err := enc.Encrypt(plain)
	require.NoError(t, err)
	require.NotEqual(t, plain, ciphertext)

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plain, decrypted)
}

func TestChaCha20Poly1305_RejectsTamperedCiphertext(t *testing.T) {
	var key [32]byte
	enc, err := NewChaCha20Poly1305(key)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("secret"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = enc.Decrypt(ciphertext)
	require.Error(t, err)
}

func TestNoopEncrypter_IsPassthrough(t *testing.T) {
	enc := NoopEncrypter{}
	plain := []byte("plaintext")
	out, err := enc.Encrypt(plain)
	require.NoError(t, err)
	require.Equal(t, plain, out)
}

func TestSHA256TruncHasher_FixedWidth(t *testing.T) {
	h := SHA256TruncHasher{OutLen: 16}
	digest := h.Hash([]byte("a very long original key that exceeds the hashing threshold"))
	require.Len(t, digest, 16)
}

func TestRegistry_ResolvesByCode(t *testing.T) {
	r := NewRegistry()
	enc, err := r.Encrypter(CodeNoopEncrypt)
	require.NoError(t, err)
	require.Equal(t, CodeNoopEncrypt, enc.Code())

	_, err = r.Encrypter(Code(99))
	require.Error(t, err)
}
