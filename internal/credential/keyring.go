// Package credential resolves account secrets (passwords, pinned
// certificates) from the system keyring. The sync core never persists
// plaintext secrets itself.
package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "easclient"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/easclient/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("easclient-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Resolver looks up secrets by key. The store and transport depend on
// this interface rather than the keyring directly so tests can inject a
// fixed map.
type Resolver interface {
	Resolve(key string) (string, error)
}

// KeyringResolver resolves secrets from the system keyring.
type KeyringResolver struct{}

// Resolve retrieves a secret by key.
func (KeyringResolver) Resolve(key string) (string, error) {
	return Get(key)
}

// StaticResolver resolves secrets from a fixed map; intended for tests.
type StaticResolver map[string]string

func (r StaticResolver) Resolve(key string) (string, error) {
	v, ok := r[key]
	if !ok {
		return "", fmt.Errorf("credential %q not found", key)
	}
	return v, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
