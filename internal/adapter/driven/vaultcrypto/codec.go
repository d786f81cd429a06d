// Package vaultcrypto encrypts the org list under a master password.
//
// A sealed blob is the base64 (standard alphabet) encoding of:
//
//	version(1) || iterations(4, big endian) || salt(16) || nonce(24) || ciphertext || tag(16)
//
// The key is PBKDF2-SHA256(password, salt, iterations) and the cipher is
// XChaCha20-Poly1305 with the header bytes as additional data, so a wrong
// password is detected by the AEAD tag rather than by parsing garbage.
package vaultcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
	"github.com/ericfisherdev/orgvault/internal/domain/port/driven"
)

const (
	formatVersion byte = 1
	saltSize           = 16
	headerSize         = 1 + 4 + saltSize
	keySize            = chacha20poly1305.KeySize

	// DefaultIterations is the PBKDF2-SHA256 work factor for new blobs.
	DefaultIterations = 210_000

	// MaxIterations caps the work factor accepted for sealing and opening.
	// A blob header asking for more is treated as corrupt.
	MaxIterations = 10_000_000
)

var (
	// ErrWrongPassword means the blob is well formed but the password does
	// not authenticate it.
	ErrWrongPassword = fmt.Errorf("vaultcrypto: %w", model.ErrWrongPassword)

	// ErrCorruptCiphertext means the blob could not be parsed or its
	// plaintext is not an org list.
	ErrCorruptCiphertext = fmt.Errorf("vaultcrypto: corrupt ciphertext: %w", model.ErrVaultCorrupt)
)

// Compile-time interface satisfaction check.
var _ driven.VaultCodec = (*Codec)(nil)

// Codec seals and opens org lists. The zero value is not usable; use NewCodec.
type Codec struct {
	iterations int
	hashCost   int
}

// NewCodec returns a Codec deriving keys with the given PBKDF2 iteration
// count and hashing master passwords at the given bcrypt cost. Out-of-range
// values fall back to the defaults.
func NewCodec(iterations, hashCost int) *Codec {
	if iterations <= 0 || iterations > MaxIterations {
		iterations = DefaultIterations
	}
	if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
		hashCost = bcrypt.DefaultCost
	}
	return &Codec{iterations: iterations, hashCost: hashCost}
}

// Encrypt serializes orgs in order and seals them under password.
func (c *Codec) Encrypt(orgs []model.Org, password string) (string, error) {
	if orgs == nil {
		orgs = []model.Org{}
	}
	plaintext, err := json.Marshal(orgs)
	if err != nil {
		return "", fmt.Errorf("marshal org list: %w", err)
	}

	header := make([]byte, headerSize)
	header[0] = formatVersion
	binary.BigEndian.PutUint32(header[1:5], uint32(c.iterations))
	if _, err := rand.Read(header[5:]); err != nil {
		return "", fmt.Errorf("rand salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(password, header[5:], c.iterations))
	if err != nil {
		return "", fmt.Errorf("chacha20poly1305.NewX: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	out := make([]byte, 0, headerSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, header)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open is the strict inverse of Encrypt. It returns ErrWrongPassword when
// the tag does not verify and ErrCorruptCiphertext for anything malformed.
func (c *Codec) Open(ciphertext, password string) ([]model.Org, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %v", ErrCorruptCiphertext, err)
	}
	if len(data) < headerSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: blob too short", ErrCorruptCiphertext)
	}
	if data[0] != formatVersion {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrCorruptCiphertext, data[0])
	}

	header := data[:headerSize]
	iterations := int(binary.BigEndian.Uint32(header[1:5]))
	if iterations <= 0 || iterations > MaxIterations {
		return nil, fmt.Errorf("%w: invalid iteration count %d", ErrCorruptCiphertext, iterations)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(password, header[5:], iterations))
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305.NewX: %w", err)
	}

	nonce := data[headerSize : headerSize+aead.NonceSize()]
	sealed := data[headerSize+aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, header)
	if err != nil {
		return nil, ErrWrongPassword
	}

	var orgs []model.Org
	if err := json.Unmarshal(plaintext, &orgs); err != nil {
		return nil, fmt.Errorf("%w: unmarshal org list: %v", ErrCorruptCiphertext, err)
	}
	if orgs == nil {
		orgs = []model.Org{}
	}
	return orgs, nil
}

// Decrypt opens ciphertext and returns an empty list on any failure. Use
// Open where a wrong password must be told apart from an empty vault.
func (c *Codec) Decrypt(ciphertext, password string) []model.Org {
	orgs, err := c.Open(ciphertext, password)
	if err != nil {
		slog.Debug("decrypt org list failed", "error", err)
		return []model.Org{}
	}
	return orgs
}

// HashPassword returns a salted one-way digest of password. It is only a
// hint for rejecting a mistyped password early and never keys anything.
func (c *Codec) HashPassword(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword(prehash(password), c.hashCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(digest), nil
}

// VerifyPassword reports whether password matches a digest produced by
// HashPassword.
func (c *Codec) VerifyPassword(digest, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), prehash(password)) == nil
}

// prehash keeps long passwords under bcrypt's 72-byte input limit.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(hex.EncodeToString(sum[:]))
}

func deriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)
}
