// Package secrets defines the consumed interface onto the credential
// store: the bot only needs to read an API key/secret pair, never the
// vault's own management API.
package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"bithumbot/internal/config"
)

// Provider resolves the Bithumb API key/secret pair at startup. Credentials
// are read-only after startup.
type Provider interface {
	Credentials(ctx context.Context) (apiKey, secretKey string, err error)
}

// EnvProvider reads credentials directly out of configuration, the local
// and dry-run fallback when no vault is configured.
type EnvProvider struct {
	cfg config.ExchangeConfig
}

// NewEnvProvider builds a Provider backed by values already resolved by
// internal/config (file + BITHUMBOT_* env overlay).
func NewEnvProvider(cfg config.ExchangeConfig) *EnvProvider {
	return &EnvProvider{cfg: cfg}
}

func (p *EnvProvider) Credentials(ctx context.Context) (string, string, error) {
	return p.cfg.ConnectKey, p.cfg.SecretKey, nil
}

// VaultConfig configures the VaultProvider's connection to HashiCorp Vault.
type VaultConfig struct {
	Address string
	Token   string
	Path    string // KV path holding "connect_key" and "secret_key"
}

// VaultProvider fetches credentials from HashiCorp Vault: a thin wrapper
// around api.Client with an in-memory cache so repeated reads do not hit
// the vault again.
type VaultProvider struct {
	client *api.Client
	path   string

	mu        sync.Mutex
	cachedKey string
	cachedSec string
	cached    bool
}

// NewVaultProvider builds a VaultProvider against cfg. It performs no
// network call until Credentials is first invoked.
func NewVaultProvider(cfg VaultConfig) (*VaultProvider, error) {
	vaultCfg := api.DefaultConfig()
	vaultCfg.Address = cfg.Address
	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	return &VaultProvider{client: client, path: cfg.Path}, nil
}

func (p *VaultProvider) Credentials(ctx context.Context) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached {
		return p.cachedKey, p.cachedSec, nil
	}

	secret, err := p.client.Logical().ReadWithContext(ctx, p.path)
	if err != nil {
		return "", "", fmt.Errorf("read vault secret at %s: %w", p.path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", "", fmt.Errorf("no secret data at vault path %s", p.path)
	}

	key, _ := secret.Data["connect_key"].(string)
	sec, _ := secret.Data["secret_key"].(string)
	if key == "" || sec == "" {
		return "", "", fmt.Errorf("vault secret at %s missing connect_key/secret_key", p.path)
	}

	p.cachedKey, p.cachedSec, p.cached = key, sec, true
	return key, sec, nil
}
