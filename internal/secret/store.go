package secret

import (
	"fmt"
	"os"
	"strings"
)

// SecretStore looks up sensitive values such as database passwords.
type SecretStore interface {
	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)
}

// EnvStore reads secrets from environment variables.
type EnvStore struct{}

func (EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

// Resolver turns references of the form "<store>:<key>" into secret values.
type Resolver struct {
	Stores map[string]SecretStore
}

// NewResolver returns a Resolver knowing the "env" and "keychain" stores.
func NewResolver() *Resolver {
	return &Resolver{Stores: map[string]SecretStore{
		"env":      EnvStore{},
		"keychain": NewKeychainStore(),
	}}
}

// Resolve returns the secret ref points at. A missing secret is an error.
func (r *Resolver) Resolve(ref string) (string, error) {
	scheme, key, ok := strings.Cut(ref, ":")
	if !ok || key == "" {
		return "", fmt.Errorf("secret reference %q: want <store>:<key>", ref)
	}
	store, ok := r.Stores[scheme]
	if !ok {
		return "", fmt.Errorf("secret reference %q: unknown store %q", ref, scheme)
	}
	v, err := store.Get(key)
	if err != nil {
		return "", fmt.Errorf("secret %s: %w", ref, err)
	}
	if len(v) == 0 {
		return "", fmt.Errorf("secret %s not found", ref)
	}
	return string(v), nil
}
