package keys

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// GCPSecretManagerProvider stores each key as a GCP Secret Manager secret
// named {prefix}-{id}, with the active id under the sentinel
// {prefix}-current.
type GCPSecretManagerProvider struct {
	client    *secretmanager.Client
	projectID string
	prefix    string
}

// NewGCPSecretManagerProvider builds a Provider backed by GCP Secret
// Manager, authenticating via application-default credentials.
func NewGCPSecretManagerProvider(ctx context.Context, projectID, prefix string) (*GCPSecretManagerProvider, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, apperrors.Wrap("keys.NewGCPSecretManagerProvider", apperrors.Config, "new client: %w", err)
	}
	return &GCPSecretManagerProvider{client: client, projectID: projectID, prefix: prefix}, nil
}

func (p *GCPSecretManagerProvider) secretID(id string) string {
	return fmt.Sprintf("%s-%s", p.prefix, id)
}

func (p *GCPSecretManagerProvider) sentinelID() string {
	return fmt.Sprintf("%s-current", p.prefix)
}

func (p *GCPSecretManagerProvider) parent() string {
	return fmt.Sprintf("projects/%s", p.projectID)
}

func (p *GCPSecretManagerProvider) accessLatest(ctx context.Context, secretID string) (string, error) {
	name := fmt.Sprintf("%s/secrets/%s/versions/latest", p.parent(), secretID)
	resp, err := p.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	return string(resp.Payload.Data), nil
}

func (p *GCPSecretManagerProvider) CurrentKey(ctx context.Context) (ManagedKey, error) {
	id, err := p.accessLatest(ctx, p.sentinelID())
	if err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.GCPSecretManagerProvider.CurrentKey", apperrors.KeyNotFound, "read sentinel: %w", err)
	}
	return p.KeyByID(ctx, id)
}

func (p *GCPSecretManagerProvider) KeyByID(ctx context.Context, id string) (ManagedKey, error) {
	value, err := p.accessLatest(ctx, p.secretID(id))
	if err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.GCPSecretManagerProvider.KeyByID", apperrors.KeyNotFound, "access secret %q: %w", id, err)
	}
	return decodeManagedKey(id, value)
}

func (p *GCPSecretManagerProvider) createOrAddVersion(ctx context.Context, secretID, value string) error {
	_, err := p.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   p.parent(),
		SecretId: secretID,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil && !isAlreadyExists(err) {
		return err
	}
	_, err = p.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  fmt.Sprintf("%s/secrets/%s", p.parent(), secretID),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	})
	return err
}

func (p *GCPSecretManagerProvider) CreateKey(ctx context.Context) (ManagedKey, error) {
	id, keyBytes, err := newKeyMaterial()
	if err != nil {
		return ManagedKey{}, err
	}
	value := base64.StdEncoding.EncodeToString(keyBytes[:])

	if err := p.createOrAddVersion(ctx, p.secretID(id), value); err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.GCPSecretManagerProvider.CreateKey", apperrors.Storage, "store key: %w", err)
	}
	if err := p.createOrAddVersion(ctx, p.sentinelID(), id); err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.GCPSecretManagerProvider.CreateKey", apperrors.Storage, "update sentinel: %w", err)
	}

	return ManagedKey{ID: id, Key: keyBytes, CreatedAt: time.Now()}, nil
}

func (p *GCPSecretManagerProvider) RotateKey(ctx context.Context) (ManagedKey, error) {
	return p.CreateKey(ctx)
}

func (p *GCPSecretManagerProvider) ListKeyIDs(ctx context.Context) ([]string, error) {
	var ids []string
	it := p.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{Parent: p.parent()})
	for {
		secret, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apperrors.Wrap("keys.GCPSecretManagerProvider.ListKeyIDs", apperrors.Storage, "list secrets: %w", err)
		}
		name := secret.Name[strings.LastIndex(secret.Name, "/")+1:]
		if name == p.sentinelID() || !strings.HasPrefix(name, p.prefix+"-") {
			continue
		}
		ids = append(ids, strings.TrimPrefix(name, p.prefix+"-"))
	}
	return ids, nil
}
