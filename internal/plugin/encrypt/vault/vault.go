// Package vault registers the "vault" encryption provider. HashiCorp Vault's
// Transit engine wraps the database-resident DEKs; payload encryption itself
// stays local, so Vault sees 32-byte keys and never conversation data.
package vault

import (
	"context"
	"encoding/base64"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/plugin/encrypt/kek"
	"github.com/consulta/advisor-service/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{Name: "vault", Loader: load})
}

// load builds the provider. Vault address and token come from the standard
// VAULT_* environment variables via DefaultConfig.
func load(_ context.Context, cfg *config.Config) (encrypt.Provider, error) {
	if cfg.EncryptionVaultTransitKey == "" {
		return nil, fmt.Errorf("vault provider: ADVISOR_SERVICE_ENCRYPTION_VAULT_TRANSIT_KEY is required")
	}
	client, err := vaultapi.NewClient(vaultapi.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("vault provider: creating client: %w", err)
	}
	transit := &transitWrapper{client: client, keyName: cfg.EncryptionVaultTransitKey}
	return kek.NewProvider("vault", cfg, transit), nil
}

// transitWrapper wraps DEKs through the Transit secrets engine. Transit's API
// is base64-in, vault-token-string-out in both directions.
type transitWrapper struct {
	client  *vaultapi.Client
	keyName string
}

func (t *transitWrapper) Wrap(ctx context.Context, plaintext []byte) ([]byte, error) {
	secret, err := t.client.Logical().WriteWithContext(ctx, "transit/encrypt/"+t.keyName, map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return nil, fmt.Errorf("vault: transit/encrypt: %w", err)
	}
	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault: transit/encrypt: response has no ciphertext")
	}
	return []byte(ciphertext), nil
}

func (t *transitWrapper) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	secret, err := t.client.Logical().WriteWithContext(ctx, "transit/decrypt/"+t.keyName, map[string]any{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		return nil, fmt.Errorf("vault: transit/decrypt: %w", err)
	}
	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault: transit/decrypt: response has no plaintext")
	}
	plain, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vault: transit/decrypt: decoding plaintext: %w", err)
	}
	return plain, nil
}
