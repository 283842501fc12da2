// Package secrets implements the secret-provider abstraction the Executor
// uses for its shared bearer token and any provider credentials it needs
// directly: an env-backed default, and a vault-capable implementation that
// decrypts a sealed-at-rest bundle with the same AES-256-GCM scheme the
// rest of the codebase uses for secrets at rest.
package secrets

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/arocore/core/common/crypto"
	"github.com/arocore/core/common/environment"
)

// Provider resolves a named secret to its plaintext value.
type Provider interface {
	Get(name string) (string, error)
}

// EnvProvider resolves secrets from environment variables, optionally
// prefixed (e.g. prefix "OPENCLAW_" turns Get("SHARED_TOKEN") into a lookup
// of OPENCLAW_SHARED_TOKEN). This is the default provider: it requires no
// additional infrastructure and matches how the rest of the Executor's
// configuration is loaded.
type EnvProvider struct {
	Prefix string
}

// Get reads the named secret from the environment.
func (p EnvProvider) Get(name string) (string, error) {
	key := p.Prefix + name
	v, ok := environment.String(key)
	if !ok || v == "" {
		return "", fmt.Errorf("secrets: environment variable %q is not set", key)
	}
	return v, nil
}

// VaultProvider decrypts secrets from a sealed bundle file: a JSON object
// of name -> base64-less hex ciphertext, each produced by crypto.Encrypt
// under a single master key. It stands in for a real vault-backed
// implementation (HashiCorp Vault, AWS Secrets Manager, ...) without
// depending on one; swapping the backing store means reimplementing Get,
// not the callers.
type VaultProvider struct {
	masterKey []byte
	sealed    map[string]string
}

// NewVaultProvider loads a sealed-secrets bundle from path, decrypting
// nothing until Get is called.
func NewVaultProvider(path string, masterKey []byte) (*VaultProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: read sealed bundle %s: %w", path, err)
	}
	var sealed map[string]string
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, fmt.Errorf("secrets: parse sealed bundle %s: %w", path, err)
	}
	return &VaultProvider{masterKey: masterKey, sealed: sealed}, nil
}

// Get decrypts and returns the named secret.
func (p *VaultProvider) Get(name string) (string, error) {
	hexCiphertext, ok := p.sealed[name]
	if !ok {
		return "", fmt.Errorf("secrets: no sealed value for %q", name)
	}
	ciphertext, err := hex.DecodeString(hexCiphertext)
	if err != nil {
		return "", fmt.Errorf("secrets: decode sealed value for %q: %w", name, err)
	}
	plaintext, err := crypto.Decrypt(p.masterKey, ciphertext)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt %q: %w", name, err)
	}
	return string(plaintext), nil
}
