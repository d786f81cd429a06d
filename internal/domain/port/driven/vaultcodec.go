package driven

import "github.com/ericfisherdev/orgvault/internal/domain/model"

// VaultCodec seals the org list under the master password.
type VaultCodec interface {
	// Encrypt seals the whole list; salt and nonce are fresh per call.
	Encrypt(orgs []model.Org, password string) (string, error)

	// Open is the strict inverse of Encrypt. A password that does not
	// authenticate the blob yields an error wrapping model.ErrWrongPassword;
	// a malformed blob yields one wrapping model.ErrVaultCorrupt.
	Open(ciphertext, password string) ([]model.Org, error)

	// HashPassword returns a one-way digest used only as an unlock hint.
	HashPassword(password string) (string, error)

	// VerifyPassword checks password against a HashPassword digest.
	VerifyPassword(digest, password string) bool
}
