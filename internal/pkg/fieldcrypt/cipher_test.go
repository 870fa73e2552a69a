package fieldcrypt

import (
	"encoding/hex"
	"strings"
	"testing"

	xerrors "propdesk-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := New("test-master-secret", WithIterations(1000))
	require.NoError(t, err)
	return c
}

func TestNew_RejectsEmptySecret(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrEncryption)
}

func TestNew_DefaultIterations(t *testing.T) {
	c, err := New("secret")
	require.NoError(t, err)
	assert.Equal(t, DefaultIterations, c.iterations)
}

func TestRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	values := []string{"4111111111111111", "12", "2030", "123", "a", "ünïcødé ✓", strings.Repeat("x", 4096)}
	contexts := []string{"", ContextCard, ContextBank, ContextBilling}

	for _, v := range values {
		for _, ctx := range contexts {
			enc, err := c.Encrypt(v, ctx)
			require.NoError(t, err)
			dec, err := c.Decrypt(enc, ctx)
			require.NoError(t, err)
			assert.Equal(t, v, dec)
		}
	}
}

func TestRoundTrip_DefaultIterations(t *testing.T) {
	c, err := New("production-like-secret")
	require.NoError(t, err)

	enc, err := c.Encrypt("123456789", ContextBilling)
	require.NoError(t, err)
	dec, err := c.Decrypt(enc, ContextBilling)
	require.NoError(t, err)
	assert.Equal(t, "123456789", dec)
}

func TestEncrypt_WireFormat(t *testing.T) {
	c := newTestCipher(t)

	enc, err := c.Encrypt("4111111111111111", ContextCard)
	require.NoError(t, err)

	parts := strings.Split(enc, ":")
	require.Len(t, parts, 4)
	assert.Len(t, parts[0], SaltSize*2)
	assert.Len(t, parts[1], NonceSize*2)
	assert.Len(t, parts[2], TagSize*2)
	assert.Len(t, parts[3], len("4111111111111111")*2)
	for _, p := range parts {
		_, err := hex.DecodeString(p)
		assert.NoError(t, err)
	}
}

func TestEncrypt_FreshSaltAndNonce(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt("same", ContextCard)
	require.NoError(t, err)
	b, err := c.Encrypt("same", ContextCard)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, strings.Split(a, ":")[0], strings.Split(b, ":")[0])
	assert.NotEqual(t, strings.Split(a, ":")[1], strings.Split(b, ":")[1])
}

func TestEncrypt_EmptyIsNoop(t *testing.T) {
	c := newTestCipher(t)

	enc, err := c.Encrypt("", ContextCard)
	require.NoError(t, err)
	assert.Equal(t, "", enc)
}

func TestDecrypt_ContextMismatch(t *testing.T) {
	c := newTestCipher(t)

	pairs := [][2]string{
		{ContextCard, ContextBilling},
		{ContextBilling, ContextCard},
		{ContextCard, ""},
		{"", ContextBank},
	}
	for _, p := range pairs {
		enc, err := c.Encrypt("12345678", p[0])
		require.NoError(t, err)

		dec, err := c.Decrypt(enc, p[1])
		assert.ErrorIs(t, err, xerrors.ErrDecryption, "encrypt=%q decrypt=%q", p[0], p[1])
		assert.Empty(t, dec)
	}
}

func TestDecrypt_WrongSecret(t *testing.T) {
	a := newTestCipher(t)
	b, err := New("another-secret", WithIterations(1000))
	require.NoError(t, err)

	enc, err := a.Encrypt("secret value", ContextCard)
	require.NoError(t, err)

	_, err = b.Decrypt(enc, ContextCard)
	assert.ErrorIs(t, err, xerrors.ErrDecryption)
}

func TestDecrypt_SegmentCount(t *testing.T) {
	c := newTestCipher(t)

	for _, in := range []string{"", "abc", "a:b", "a:b:c", "a:b:c:d:e", "::::"} {
		_, err := c.Decrypt(in, ContextCard)
		assert.ErrorIs(t, err, xerrors.ErrDecryption, "input %q", in)
	}
}

func TestDecrypt_MalformedSegments(t *testing.T) {
	c := newTestCipher(t)

	enc, err := c.Encrypt("4111111111111111", ContextCard)
	require.NoError(t, err)
	parts := strings.Split(enc, ":")

	cases := map[string][]string{
		"salt not hex":   {"zz" + parts[0][2:], parts[1], parts[2], parts[3]},
		"short salt":     {parts[0][:10], parts[1], parts[2], parts[3]},
		"short iv":       {parts[0], parts[1][:8], parts[2], parts[3]},
		"short tag":      {parts[0], parts[1], parts[2][:16], parts[3]},
		"cipher not hex": {parts[0], parts[1], parts[2], "xyz"},
		"odd cipher hex": {parts[0], parts[1], parts[2], parts[3][1:]},
		"empty cipher":   {parts[0], parts[1], parts[2], ""},
	}
	for name, segs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decrypt(strings.Join(segs, ":"), ContextCard)
			assert.ErrorIs(t, err, xerrors.ErrDecryption)
		})
	}
}

func TestDecrypt_TamperedTagOrBody(t *testing.T) {
	c := newTestCipher(t)

	enc, err := c.Encrypt("4111111111111111", ContextCard)
	require.NoError(t, err)
	parts := strings.Split(enc, ":")

	flip := func(h string) string {
		b, _ := hex.DecodeString(h)
		b[0] ^= 0x01
		return hex.EncodeToString(b)
	}

	tamperedTag := strings.Join([]string{parts[0], parts[1], flip(parts[2]), parts[3]}, ":")
	_, err = c.Decrypt(tamperedTag, ContextCard)
	assert.ErrorIs(t, err, xerrors.ErrDecryption)

	tamperedBody := strings.Join([]string{parts[0], parts[1], parts[2], flip(parts[3])}, ":")
	_, err = c.Decrypt(tamperedBody, ContextCard)
	assert.ErrorIs(t, err, xerrors.ErrDecryption)

	tamperedSalt := strings.Join([]string{flip(parts[0]), parts[1], parts[2], parts[3]}, ":")
	_, err = c.Decrypt(tamperedSalt, ContextCard)
	assert.ErrorIs(t, err, xerrors.ErrDecryption)
}
