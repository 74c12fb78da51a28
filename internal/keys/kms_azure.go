package keys

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// AzureKeyVaultProvider stores each key as a base64 secret named
// {prefix}-{id} and the active id under the sentinel secret {prefix}-current.
type AzureKeyVaultProvider struct {
	client *azsecrets.Client
	prefix string
}

// NewAzureKeyVaultProvider builds a Provider backed by Azure Key Vault,
// authenticating via the ambient credential chain (environment, managed
// identity, Azure CLI).
func NewAzureKeyVaultProvider(vaultURL, prefix string) (*AzureKeyVaultProvider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, apperrors.Wrap("keys.NewAzureKeyVaultProvider", apperrors.Config, "default azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, apperrors.Wrap("keys.NewAzureKeyVaultProvider", apperrors.Config, "new secrets client: %w", err)
	}
	return &AzureKeyVaultProvider{client: client, prefix: prefix}, nil
}

func (p *AzureKeyVaultProvider) secretName(id string) string {
	return fmt.Sprintf("%s-%s", p.prefix, id)
}

func (p *AzureKeyVaultProvider) sentinelName() string {
	return fmt.Sprintf("%s-current", p.prefix)
}

func (p *AzureKeyVaultProvider) CurrentKey(ctx context.Context) (ManagedKey, error) {
	resp, err := p.client.GetSecret(ctx, p.sentinelName(), "", nil)
	if err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.AzureKeyVaultProvider.CurrentKey", apperrors.KeyNotFound, "read sentinel: %w", err)
	}
	return p.KeyByID(ctx, *resp.Value)
}

func (p *AzureKeyVaultProvider) KeyByID(ctx context.Context, id string) (ManagedKey, error) {
	resp, err := p.client.GetSecret(ctx, p.secretName(id), "", nil)
	if err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.AzureKeyVaultProvider.KeyByID", apperrors.KeyNotFound, "get secret %q: %w", id, err)
	}
	return decodeManagedKey(id, *resp.Value)
}

func (p *AzureKeyVaultProvider) CreateKey(ctx context.Context) (ManagedKey, error) {
	id, keyBytes, err := newKeyMaterial()
	if err != nil {
		return ManagedKey{}, err
	}
	value := base64.StdEncoding.EncodeToString(keyBytes[:])

	if _, err := p.client.SetSecret(ctx, p.secretName(id), azsecrets.SetSecretParameters{Value: &value}, nil); err != nil && !isAlreadyExists(err) {
		return ManagedKey{}, apperrors.Wrap("keys.AzureKeyVaultProvider.CreateKey", apperrors.Storage, "set secret: %w", err)
	}
	if _, err := p.client.SetSecret(ctx, p.sentinelName(), azsecrets.SetSecretParameters{Value: &id}, nil); err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.AzureKeyVaultProvider.CreateKey", apperrors.Storage, "set sentinel: %w", err)
	}

	return ManagedKey{ID: id, Key: keyBytes, CreatedAt: time.Now()}, nil
}

func (p *AzureKeyVaultProvider) RotateKey(ctx context.Context) (ManagedKey, error) {
	return p.CreateKey(ctx)
}

func (p *AzureKeyVaultProvider) ListKeyIDs(ctx context.Context) ([]string, error) {
	var ids []string
	pager := p.client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Wrap("keys.AzureKeyVaultProvider.ListKeyIDs", apperrors.Storage, "list secrets: %w", err)
		}
		for _, item := range page.Value {
			if item.ID == nil {
				continue
			}
			name := string(*item.ID)
			name = name[strings.LastIndex(name, "/")+1:]
			if name == p.sentinelName() || !strings.HasPrefix(name, p.prefix+"-") {
				continue
			}
			ids = append(ids, strings.TrimPrefix(name, p.prefix+"-"))
		}
	}
	return ids, nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "exist")
}

func decodeManagedKey(id, encoded string) (ManagedKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.decodeManagedKey", apperrors.Serialization, "decode secret value: %w", err)
	}
	if len(raw) != 32 {
		return ManagedKey{}, apperrors.Wrap("keys.decodeManagedKey", apperrors.KeyNotFound, "secret %q is not a 32-byte key", id)
	}
	var mk ManagedKey
	mk.ID = id
	copy(mk.Key[:], raw)
	return mk, nil
}
