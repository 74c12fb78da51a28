package keys

import (
	"context"
	"os"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// ProviderKind selects which key-provider backend to construct.
type ProviderKind string

const (
	ProviderKindLocal             ProviderKind = "local"
	ProviderKindAzureKeyVault     ProviderKind = "azure-keyvault"
	ProviderKindGCPSecretManager  ProviderKind = "gcp-secretmanager"
	ProviderKindAWSSecretsManager ProviderKind = "aws-secretsmanager"
)

// Config carries every field any Provider constructor might need; only the
// fields relevant to Kind are read.
type Config struct {
	Kind ProviderKind

	// local
	KeyfilePath string
	Passphrase  string

	// azure-keyvault
	VaultURL string

	// gcp-secretmanager
	GCPProjectID string

	// aws-secretsmanager
	AWSRegion string

	// shared by every remote KMS adapter
	SecretPrefix string
}

// Open constructs the configured Provider, opening an existing local
// keystore if one exists at KeyfilePath or creating one otherwise.
func Open(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Kind {
	case ProviderKindLocal, "":
		return openOrCreateLocal(ctx, cfg.KeyfilePath, cfg.Passphrase)
	case ProviderKindAzureKeyVault:
		return NewAzureKeyVaultProvider(cfg.VaultURL, cfg.SecretPrefix)
	case ProviderKindGCPSecretManager:
		return NewGCPSecretManagerProvider(ctx, cfg.GCPProjectID, cfg.SecretPrefix)
	case ProviderKindAWSSecretsManager:
		return NewAWSSecretsManagerProvider(ctx, cfg.AWSRegion, cfg.SecretPrefix)
	default:
		return nil, apperrors.Wrap("keys.Open", apperrors.Config, "unknown key_provider %q", cfg.Kind)
	}
}

func openOrCreateLocal(ctx context.Context, path, passphrase string) (Provider, error) {
	if _, err := os.Stat(path); err == nil {
		return OpenLocalKeystore(ctx, path, passphrase)
	}
	return CreateLocalKeystore(ctx, path, passphrase)
}
