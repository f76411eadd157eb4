package auth

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const tokenKey = "access_token"

// OpenKeyring opens the OS credential store, falling back to an encrypted
// file under fileDir.
func OpenKeyring(service, fileDir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringTokens stores the session's access token in a keyring.
type KeyringTokens struct {
	ring keyring.Keyring
}

var _ TokenSource = (*KeyringTokens)(nil)

// NewKeyringTokens wraps ring.
func NewKeyringTokens(ring keyring.Keyring) *KeyringTokens {
	return &KeyringTokens{ring: ring}
}

// Token implements TokenSource.
func (k *KeyringTokens) Token() (string, error) {
	item, err := k.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting session token: %w", err)
	}
	if len(item.Data) == 0 {
		return "", ErrNoToken
	}
	return string(item.Data), nil
}

// SetToken stores token, replacing any previous one.
func (k *KeyringTokens) SetToken(token string) error {
	err := k.ring.Set(keyring.Item{
		Key:   tokenKey,
		Data:  []byte(token),
		Label: "session access token",
	})
	if err != nil {
		return fmt.Errorf("setting session token: %w", err)
	}
	return nil
}

// Clear removes the stored token. Clearing an empty store is not an error.
func (k *KeyringTokens) Clear() error {
	err := k.ring.Remove(tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting session token: %w", err)
	}
	return nil
}
