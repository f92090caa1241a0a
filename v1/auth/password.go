// Package auth checks the shared door passcode and throttles clients that
// keep getting it wrong.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
)

// ErrNoPassword is returned when no password hash has been set up.
var ErrNoPassword = errors.New("auth: no password set")

// HashPassword returns the bcrypt hash of pass. Surrounding whitespace is
// not part of the password.
func HashPassword(pass string) (string, error) {
	pass = strings.TrimSpace(pass)
	if pass == "" {
		return "", fmt.Errorf("%w: empty password", dlerrors.ErrConfiguration)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash: %w", err)
	}
	return string(h), nil
}

// WritePasswordFile hashes pass and stores it at path, readable only by
// the owner.
func WritePasswordFile(path, pass string) error {
	h, err := HashPassword(pass)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(h+"\n"), 0o600); err != nil {
		return fmt.Errorf("auth: write %s: %w", path, err)
	}
	return nil
}

// PasswordFileExists reports whether a hash is stored at path.
func PasswordFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Verifier checks a passcode.
type Verifier interface {
	Verify(pass string) (bool, error)
}

// FileVerifier checks passcodes against the hash stored in a file. The
// file is read on every check so `doorlockd passwd` takes effect without a
// restart.
type FileVerifier struct {
	path string
}

// NewFileVerifier returns a FileVerifier for path.
func NewFileVerifier(path string) *FileVerifier {
	return &FileVerifier{path: path}
}

// Verify returns false for a wrong passcode and an error when the stored
// hash cannot be used.
func (v *FileVerifier) Verify(pass string) (bool, error) {
	data, err := os.ReadFile(v.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, ErrNoPassword
	}
	if err != nil {
		return false, fmt.Errorf("auth: read %s: %w", v.path, err)
	}
	err = bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(string(data))), []byte(pass))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	}
	return false, fmt.Errorf("auth: %s: %w", v.path, err)
}
