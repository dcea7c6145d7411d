package bdd

import (
	"path/filepath"
	"testing"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/stretchr/testify/require"
)

// testEncryptionKey is a 64-hex-char (32-byte) AES-256 key for testing.
const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// TestFeaturesPgEncrypted re-runs the file-centric features with envelope
// encryption enabled. Encryption is transparent to the API, so the same
// scenarios must pass; features-encrypted/ adds at-rest ciphertext checks.
func TestFeaturesPgEncrypted(t *testing.T) {
	env := startEnv(t, func(cfg *config.Config) {
		cfg.EncryptionProviders = "local"
		cfg.EncryptionKey = testEncryptionKey
	})

	featureFiles := []string{
		filepath.Join("features", "chat.feature"),
		filepath.Join("features", "files.feature"),
	}
	for _, f := range featureFiles {
		require.FileExists(t, f)
	}
	featureFiles = append(featureFiles, featurePaths(t, "features-encrypted")...)

	env.runFeatures(t, featureFiles)
}
