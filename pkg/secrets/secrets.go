// Package secrets resolves the encrypted on-prem credential pair. Decrypted
// values are sensitive: they are held in memory only for the duration of a
// single connection or script rendering, never logged, and scrubbed with
// Zero once the owner is done with them.
package secrets

import (
	"context"

	"github.com/kanisterio/errkit"
)

// ErrDecrypt indicates the decryption collaborator rejected a ciphertext.
// The ciphertext itself is never attached to the error.
var ErrDecrypt = errkit.NewSentinelErr("failed to decrypt on-prem credentials")

// Decrypter decrypts a single ciphertext. The production implementation
// lives in pkg/aws/kms.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// Credentials is a decrypted username/password pair.
type Credentials struct {
	Username string
	Password string
}

// String keeps credential values out of format-string output.
func (c Credentials) String() string {
	return "secrets.Credentials{REDACTED}"
}

// GoString keeps credential values out of %#v output.
func (c Credentials) GoString() string {
	return c.String()
}

// Zero scrubs both values. Callers that resolve credentials own them and
// defer Zero before first use.
func (c *Credentials) Zero() {
	c.Username = ""
	c.Password = ""
}

// Resolve decrypts the credential pair using dec. A failure on either value
// aborts the transfer before any side effect occurs.
func Resolve(ctx context.Context, dec Decrypter, encUsername, encPassword string) (Credentials, error) {
	username, err := dec.Decrypt(ctx, encUsername)
	if err != nil {
		return Credentials{}, errkit.Wrap(ErrDecrypt, "username ciphertext rejected")
	}
	password, err := dec.Decrypt(ctx, encPassword)
	if err != nil {
		return Credentials{}, errkit.Wrap(ErrDecrypt, "password ciphertext rejected")
	}
	return Credentials{Username: username, Password: password}, nil
}
