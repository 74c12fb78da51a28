package keys

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// AWSSecretsManagerProvider stores each key as a Secrets Manager secret
// named {prefix}-{id}, with the active id under the sentinel
// {prefix}-current.
type AWSSecretsManagerProvider struct {
	client *secretsmanager.Client
	prefix string
}

// NewAWSSecretsManagerProvider builds a Provider backed by AWS Secrets
// Manager for the given region, authenticating via the default credential
// chain.
func NewAWSSecretsManagerProvider(ctx context.Context, region, prefix string) (*AWSSecretsManagerProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, apperrors.Wrap("keys.NewAWSSecretsManagerProvider", apperrors.Config, "load aws config: %w", err)
	}
	return &AWSSecretsManagerProvider{client: secretsmanager.NewFromConfig(cfg), prefix: prefix}, nil
}

func (p *AWSSecretsManagerProvider) secretID(id string) string {
	return fmt.Sprintf("%s-%s", p.prefix, id)
}

func (p *AWSSecretsManagerProvider) sentinelID() string {
	return fmt.Sprintf("%s-current", p.prefix)
}

func (p *AWSSecretsManagerProvider) getSecret(ctx context.Context, name string) (string, error) {
	resp, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		return "", err
	}
	return aws.ToString(resp.SecretString), nil
}

func (p *AWSSecretsManagerProvider) CurrentKey(ctx context.Context) (ManagedKey, error) {
	id, err := p.getSecret(ctx, p.sentinelID())
	if err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.AWSSecretsManagerProvider.CurrentKey", apperrors.KeyNotFound, "read sentinel: %w", err)
	}
	return p.KeyByID(ctx, id)
}

func (p *AWSSecretsManagerProvider) KeyByID(ctx context.Context, id string) (ManagedKey, error) {
	value, err := p.getSecret(ctx, p.secretID(id))
	if err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.AWSSecretsManagerProvider.KeyByID", apperrors.KeyNotFound, "get secret %q: %w", id, err)
	}
	return decodeManagedKey(id, value)
}

func (p *AWSSecretsManagerProvider) putSecret(ctx context.Context, name, value string) error {
	_, err := p.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
	})
	if err == nil {
		return nil
	}
	if !isAlreadyExists(err) {
		return err
	}
	_, err = p.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	return err
}

func (p *AWSSecretsManagerProvider) CreateKey(ctx context.Context) (ManagedKey, error) {
	id, keyBytes, err := newKeyMaterial()
	if err != nil {
		return ManagedKey{}, err
	}
	value := base64.StdEncoding.EncodeToString(keyBytes[:])

	if err := p.putSecret(ctx, p.secretID(id), value); err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.AWSSecretsManagerProvider.CreateKey", apperrors.Storage, "store key: %w", err)
	}
	if err := p.putSecret(ctx, p.sentinelID(), id); err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.AWSSecretsManagerProvider.CreateKey", apperrors.Storage, "update sentinel: %w", err)
	}

	return ManagedKey{ID: id, Key: keyBytes, CreatedAt: time.Now()}, nil
}

func (p *AWSSecretsManagerProvider) RotateKey(ctx context.Context) (ManagedKey, error) {
	return p.CreateKey(ctx)
}

func (p *AWSSecretsManagerProvider) ListKeyIDs(ctx context.Context) ([]string, error) {
	var ids []string
	paginator := secretsmanager.NewListSecretsPaginator(p.client, &secretsmanager.ListSecretsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Wrap("keys.AWSSecretsManagerProvider.ListKeyIDs", apperrors.Storage, "list secrets: %w", err)
		}
		for _, s := range page.SecretList {
			name := aws.ToString(s.Name)
			if name == p.sentinelID() || !strings.HasPrefix(name, p.prefix+"-") {
				continue
			}
			ids = append(ids, strings.TrimPrefix(name, p.prefix+"-"))
		}
	}
	return ids, nil
}
