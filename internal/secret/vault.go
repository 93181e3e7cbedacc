package secret

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig configures the Vault resolver.
type VaultConfig struct {
	Address  string `yaml:"address"`
	RoleID   string `yaml:"role_id"`
	SecretID string `yaml:"secret_id"`
	CACert   string `yaml:"ca_cert"`
}

// VaultResolver reads secrets from HashiCorp Vault using AppRole auth.
// It renews its login token in the background until closed.
type VaultResolver struct {
	client *vault.Client
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewVaultResolver logs in to Vault and starts the token renewer.
func NewVaultResolver(cfg VaultConfig) (*VaultResolver, error) {
	vConfig := vault.DefaultConfig()
	vConfig.Address = cfg.Address
	if cfg.CACert != "" {
		if err := vConfig.ConfigureTLS(&vault.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("secret: configure vault tls: %w", err)
		}
	}

	client, err := vault.NewClient(vConfig)
	if err != nil {
		return nil, fmt.Errorf("secret: create vault client: %w", err)
	}

	login, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
		"role_id":   cfg.RoleID,
		"secret_id": cfg.SecretID,
	})
	if err != nil {
		return nil, fmt.Errorf("secret: vault approle login: %w", err)
	}
	if login == nil || login.Auth == nil {
		return nil, fmt.Errorf("secret: vault login returned no auth info")
	}
	client.SetToken(login.Auth.ClientToken)

	r := &VaultResolver{client: client, stopCh: make(chan struct{})}
	r.wg.Add(1)
	go r.renewToken(login.Auth)
	return r, nil
}

// Get reads "path/to/secret#key" from Vault. The key suffix defaults to
// "value"; KV v2 data wrappers are unwrapped transparently.
func (r *VaultResolver) Get(ctx context.Context, path string) (string, error) {
	secretPath, key := path, "value"
	if idx := strings.LastIndex(path, "#"); idx != -1 {
		secretPath, key = path[:idx], path[idx+1:]
	}

	read, err := r.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("secret: read vault path %q: %w", secretPath, err)
	}
	if read == nil || read.Data == nil {
		return "", fmt.Errorf("secret: vault path %q not found", secretPath)
	}

	data := read.Data
	if wrapped, ok := data["data"].(map[string]interface{}); ok {
		data = wrapped
	}
	val, ok := data[key]
	if !ok {
		return "", fmt.Errorf("secret: key %q not found at vault path %q", key, secretPath)
	}
	return fmt.Sprintf("%v", val), nil
}

// Close stops the token renewer.
func (r *VaultResolver) Close() error {
	close(r.stopCh)
	r.wg.Wait()
	return nil
}

func (r *VaultResolver) renewToken(auth *vault.SecretAuth) {
	defer r.wg.Done()
	if !auth.Renewable {
		return
	}

	watcher, err := r.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret: &vault.Secret{Auth: auth},
	})
	if err != nil {
		slog.Error("vault lifetime watcher failed", "error", err)
		return
	}

	go watcher.Start()
	defer watcher.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case err := <-watcher.DoneCh():
			if err != nil {
				slog.Error("vault token renewal failed", "error", err)
			}
			return
		case <-watcher.RenewCh():
		}
	}
}
