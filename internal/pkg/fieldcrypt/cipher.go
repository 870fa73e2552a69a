// Package fieldcrypt encrypts individual sensitive field values (card numbers, bank
// account numbers) for storage.
//
// Every value gets its own random salt and nonce. The AES-256 key is derived from the
// master secret and the salt with PBKDF2-HMAC-SHA256, and the value is sealed with
// AES-GCM. An optional context string is bound as additional authenticated data, so a
// value encrypted for "card" will not decrypt as "billing".
//
// Stored format (persisted, do not change):
//
//	<saltHex>:<ivHex>:<tagHex>:<cipherHex>
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	xerrors "propdesk-service/internal/pkg/errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize  = 64
	NonceSize = 16
	TagSize   = 16
	KeySize   = 32

	// DefaultIterations is the PBKDF2 work factor for every stored value.
	// Changing it makes existing ciphertexts unreadable.
	DefaultIterations = 100000

	segmentCount = 4
	separator    = ":"
)

// Contexts used as associated data by callers.
const (
	ContextCard    = "card"
	ContextBank    = "bank"
	ContextBilling = "billing"
)

type Cipher struct {
	secret     []byte
	iterations int
}

type Option func(*Cipher)

// WithIterations overrides the PBKDF2 iteration count.
func WithIterations(n int) Option {
	return func(c *Cipher) {
		if n > 0 {
			c.iterations = n
		}
	}
}

func New(secret string, opts ...Option) (*Cipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("master secret is empty: %w", xerrors.ErrEncryption)
	}
	c := &Cipher{
		secret:     []byte(secret),
		iterations: DefaultIterations,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encrypt seals plaintext and returns the colon-joined hex format. An empty plaintext
// returns an empty string.
func (c *Cipher) Encrypt(plaintext, context string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", xerrors.ErrEncryption)
	}
	iv := make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", xerrors.ErrEncryption)
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", xerrors.ErrEncryption)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), additionalData(context))
	body, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(body),
	}, separator), nil
}

// Decrypt reverses Encrypt. Any malformed input, tag mismatch or context mismatch
// yields ErrDecryption and no plaintext.
func (c *Cipher) Decrypt(ciphertext, context string) (string, error) {
	parts := strings.Split(ciphertext, separator)
	if len(parts) != segmentCount {
		return "", fmt.Errorf("expected %d segments, got %d: %w", segmentCount, len(parts), xerrors.ErrDecryption)
	}

	salt, err := decodeSegment(parts[0], SaltSize)
	if err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	iv, err := decodeSegment(parts[1], NonceSize)
	if err != nil {
		return "", fmt.Errorf("iv: %w", err)
	}
	tag, err := decodeSegment(parts[2], TagSize)
	if err != nil {
		return "", fmt.Errorf("tag: %w", err)
	}
	body, err := hex.DecodeString(parts[3])
	if err != nil {
		return "", fmt.Errorf("cipher segment is not hex: %w", xerrors.ErrDecryption)
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", xerrors.ErrDecryption)
	}

	sealed := make([]byte, 0, len(body)+len(tag))
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)

	plain, err := aead.Open(nil, iv, sealed, additionalData(context))
	if err != nil {
		return "", fmt.Errorf("authentication failed: %w", xerrors.ErrDecryption)
	}
	return string(plain), nil
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.secret, salt, c.iterations, KeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceSize)
}

func additionalData(context string) []byte {
	if context == "" {
		return nil
	}
	return []byte(context)
}

func decodeSegment(s string, size int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not hex: %w", xerrors.ErrDecryption)
	}
	if len(b) != size {
		return nil, fmt.Errorf("expected %d bytes, got %d: %w", size, len(b), xerrors.ErrDecryption)
	}
	return b, nil
}
