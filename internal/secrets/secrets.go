package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDir is where Docker mounts secrets
const DefaultDir = "/run/secrets"

// KeyName is the variable (or secret file) holding the hex AES-256 key
const KeyName = "ENCRYPTION_KEY"

// ErrNoKey is returned when a sealed value is found but no key is configured
var ErrNoKey = errors.New("encryption key not found")

// Open decrypts a sealed value of the form iv:tag:ciphertext (hex, AES-256-GCM).
// Both 12 and 16 byte IVs are accepted.
func Open(sealed, keyHex string) (string, error) {
	parts := strings.Split(strings.TrimSpace(sealed), ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid sealed value: expected iv:tag:ciphertext")
	}

	var raw [3][]byte
	for i, name := range []string{"iv", "tag", "ciphertext"} {
		b, err := hex.DecodeString(parts[i])
		if err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", name, err)
		}
		raw[i] = b
	}
	iv, tag, ciphertext := raw[0], raw[1], raw[2]

	key, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return "", fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return "", fmt.Errorf("encryption key must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}
	if len(iv) == 0 {
		return "", fmt.Errorf("invalid sealed value: empty iv")
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Resolver looks up credentials from the environment, sealed environment
// values, or secret files
type Resolver struct {
	dir    string
	getenv func(string) string
}

// NewResolver creates a resolver reading secret files from dir
func NewResolver(dir string, getenv func(string) string) *Resolver {
	return &Resolver{dir: dir, getenv: getenv}
}

// FromEnv resolves against the process environment and Docker secrets
func FromEnv() *Resolver {
	return NewResolver(DefaultDir, os.Getenv)
}

// Lookup returns the value for name, trying in order: the plain variable,
// NAME_ENC decrypted with the encryption key, and the secret file named after
// the lower-cased variable. A value found nowhere is "" with a nil error.
func (r *Resolver) Lookup(name string) (string, error) {
	if v := r.getenv(name); v != "" {
		return v, nil
	}

	if sealed := r.getenv(name + "_ENC"); sealed != "" {
		key := r.plain(KeyName)
		if key == "" {
			return "", fmt.Errorf("%s_ENC is set: %w", name, ErrNoKey)
		}
		v, err := Open(sealed, key)
		if err != nil {
			return "", fmt.Errorf("failed to open %s_ENC: %w", name, err)
		}
		return v, nil
	}

	return r.file(name), nil
}

// plain resolves without decryption
func (r *Resolver) plain(name string) string {
	if v := r.getenv(name); v != "" {
		return v
	}
	return r.file(name)
}

func (r *Resolver) file(name string) string {
	if r.dir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(r.dir, strings.ToLower(name)))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
