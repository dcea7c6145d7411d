// Package awskms registers the "kms" encryption provider. AWS KMS wraps the
// database-resident DEKs under a customer master key; payload encryption is
// local AES-GCM, so KMS traffic happens only at DEK load and rotation.
package awskms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/plugin/encrypt/kek"
	"github.com/consulta/advisor-service/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{Name: "kms", Loader: load})
}

// load builds the provider. Region and credentials resolve through the
// default AWS config chain (env, shared config, instance role).
func load(ctx context.Context, cfg *config.Config) (encrypt.Provider, error) {
	if cfg.EncryptionKMSKeyID == "" {
		return nil, fmt.Errorf("kms provider: ADVISOR_SERVICE_ENCRYPTION_KMS_KEY_ID is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("kms provider: loading AWS config: %w", err)
	}
	master := &masterKey{client: kms.NewFromConfig(awsCfg), keyID: cfg.EncryptionKMSKeyID}
	return kek.NewProvider("kms", cfg, master), nil
}

// masterKey wraps DEKs under a KMS customer master key. KeyId is passed on
// Decrypt as well so a ciphertext from the wrong key fails loudly instead of
// silently decrypting under whatever key it was made with.
type masterKey struct {
	client *kms.Client
	keyID  string
}

func (m *masterKey) Wrap(ctx context.Context, plaintext []byte) ([]byte, error) {
	out, err := m.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(m.keyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("kms: Encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (m *masterKey) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	out, err := m.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: wrapped,
		KeyId:          aws.String(m.keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("kms: Decrypt: %w", err)
	}
	return out.Plaintext, nil
}
