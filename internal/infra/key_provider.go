package infra

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

const (
	keyFileName = "state.key"
	keySize     = 32 // SQLCipher raw key, stored hex like the PRAGMA form
)

// ErrKeyExists is returned by StoreKey when another process stored a key first.
var ErrKeyExists = errors.New("state key already exists")

// FileKeyProvider keeps the state database key in a private file next to it.
// The CLI and the daemon share it, so a key is written once and never replaced.
type FileKeyProvider struct {
	dir     string
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{
		dir:     dataDir,
		keyPath: filepath.Join(dataDir, keyFileName),
	}
}

// Path returns the key file location.
func (p *FileKeyProvider) Path() string {
	return p.keyPath
}

// GetKey reads the key. A key file other users can read is refused.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	info, err := os.Stat(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return nil, fmt.Errorf("key file %s has mode %o, want 0600", p.keyPath, perm)
	}

	raw, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := hex.DecodeString(string(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return key, nil
}

// StoreKey publishes the key atomically. It fails with ErrKeyExists rather
// than replacing a key the state database may already be encrypted with.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(p.dir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(p.dir, keyFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict key file: %w", err)
	}
	if _, err := tmp.WriteString(hex.EncodeToString(key)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	// Link never replaces an existing name.
	if err := os.Link(tmp.Name(), p.keyPath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to publish key file: %w", err)
	}
	return nil
}

// KeyExists checks if the key file exists.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// GenerateKey draws a fresh SQLCipher key from crypto/rand.
func GenerateKey() ([]byte, error) {
	return generateKeyFrom(rand.Reader)
}

func generateKeyFrom(r io.Reader) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the stored key, generating one on first use. dbPath is
// the database the key protects: if it already exists without a key, a new
// key could never open it, so EnsureKey fails instead. When the CLI and the
// daemon race on first use, the loser adopts the winner's key.
func EnsureKey(provider domain.KeyProvider, dbPath string) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	if dbPath != "" {
		if _, err := os.Stat(dbPath); err == nil {
			return nil, fmt.Errorf("state database %s exists but its key is missing", dbPath)
		}
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		if errors.Is(err, ErrKeyExists) {
			return provider.GetKey()
		}
		return nil, err
	}
	return key, nil
}

// Ensure FileKeyProvider implements domain.KeyProvider.
var _ domain.KeyProvider = (*FileKeyProvider)(nil)
