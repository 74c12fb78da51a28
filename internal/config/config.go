// Package config loads and hot-reloads the vaultaire process configuration:
// server/cache ambient settings, the keystore and KMS provider selection,
// chunking/distribution/compression policy, the storage provider list, and
// Raft cluster membership.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/catalog"
	"github.com/FairForge/vaultaire/internal/keys"
	"github.com/FairForge/vaultaire/internal/storage"
	"github.com/FairForge/vaultaire/internal/types"
)

// Config is the root configuration document.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Cache        CacheConfig        `yaml:"cache"`
	DBPath       string             `yaml:"db_path" default:"./vaultaire.db"`
	KeyfilePath  string             `yaml:"keyfile_path" default:"./vaultaire.keystore"`
	StorageDataDir string           `yaml:"storage_data_dir" default:"./vaultaire-data"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Keys         KeyProviderConfig  `yaml:"keys"`
	Chunking     ChunkingConfig     `yaml:"chunking"`
	Distribution DistributionConfig `yaml:"distribution"`
	Compression  CompressionConfig  `yaml:"compression"`

	ReplicationFactor int              `yaml:"replication_factor" default:"1"`
	Providers         []ProviderConfig `yaml:"providers"`

	Raft RaftConfig `yaml:"raft"`
}

// CatalogConfig holds the PostgreSQL connection parameters for the
// metadata catalog.
type CatalogConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	Database string `yaml:"database" default:"vaultaire"`
	User     string `yaml:"user" default:"vaultaire"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
}

// ToCatalog converts to the catalog package's own connection config.
func (c CatalogConfig) ToCatalog() catalog.Config {
	return catalog.Config{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		User:     c.User,
		Password: c.Password,
		SSLMode:  c.SSLMode,
	}
}

// ServerConfig holds the ambient listener settings.
type ServerConfig struct {
	Port        int    `yaml:"port" default:"8080"`
	MetricsPort int    `yaml:"metrics_port" default:"9090"`
	LogLevel    string `yaml:"log_level" default:"info"`
}

// CacheConfig holds the local read-cache tuning knobs.
type CacheConfig struct {
	MemorySize int64  `yaml:"memory_size"`
	SSDPath    string `yaml:"ssd_path"`
	SSDSize    int64  `yaml:"ssd_size"`
	Algorithm  string `yaml:"algorithm" default:"lru"`
}

// KeyProviderKind enumerates where the data-encryption-key material lives.
type KeyProviderKind string

const (
	KeyProviderLocal              KeyProviderKind = "local"
	KeyProviderAzureKeyVault      KeyProviderKind = "azure-keyvault"
	KeyProviderGCPSecretManager   KeyProviderKind = "gcp-secretmanager"
	KeyProviderAWSSecretsManager  KeyProviderKind = "aws-secretsmanager"
)

// KeyProviderConfig selects and configures the key-material backend.
type KeyProviderConfig struct {
	Provider     KeyProviderKind `yaml:"provider" default:"local"`
	VaultURL     string          `yaml:"vault_url"`
	GCPProjectID string          `yaml:"gcp_project_id"`
	AWSRegion    string          `yaml:"aws_region"`
	SecretPrefix string          `yaml:"secret_prefix" default:"vaultaire"`
}

// ToKeys converts the configured key provider selection to the keys
// package's factory config, filling in the keyfile path and passphrase
// that only the caller (never the config file) holds.
func (k KeyProviderConfig) ToKeys(keyfilePath, passphrase string) keys.Config {
	return keys.Config{
		Kind:         keys.ProviderKind(k.Provider),
		KeyfilePath:  keyfilePath,
		Passphrase:   passphrase,
		VaultURL:     k.VaultURL,
		GCPProjectID: k.GCPProjectID,
		AWSRegion:    k.AWSRegion,
		SecretPrefix: k.SecretPrefix,
	}
}

// ChunkingConfig selects the chunker and its target/exact size.
type ChunkingConfig struct {
	Strategy   types.ChunkStrategyKind `yaml:"strategy" default:"cdc"`
	TargetSize int                     `yaml:"target_size" default:"4194304"`
}

// ToTypes converts the configured chunking policy to the chunker's own
// strategy type.
func (c ChunkingConfig) ToTypes() types.ChunkStrategy {
	return types.ChunkStrategy{Kind: c.Strategy, TargetSize: c.TargetSize}
}

// DistributionConfig selects how chunks are spread across providers.
type DistributionConfig struct {
	Strategy types.DistributionStrategy `yaml:"strategy" default:"round_robin"`
}

// CompressionConfig selects the pre-encryption compression policy.
type CompressionConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
	Level   int  `yaml:"level" default:"3"`
}

// ProviderConfig describes one configured storage provider.
type ProviderConfig struct {
	Name        string             `yaml:"name"`
	Type        types.ProviderType `yaml:"type"`
	Bucket      string             `yaml:"bucket"`
	Region      string             `yaml:"region"`
	Weight      uint32             `yaml:"weight" default:"1"`
	EndpointURL string             `yaml:"endpoint_url"`
	PathStyle   bool               `yaml:"path_style"`
	AccessKey   string             `yaml:"access_key"`
	SecretKey   string             `yaml:"secret_key"`
}

// ToStorage converts a configured provider to the storage package's
// connection descriptor.
func (p ProviderConfig) ToStorage() storage.ProviderConfig {
	return storage.ProviderConfig{
		Name:        p.Name,
		Type:        p.Type,
		Bucket:      p.Bucket,
		Region:      p.Region,
		Weight:      p.Weight,
		EndpointURL: p.EndpointURL,
		PathStyle:   p.PathStyle,
		AccessKey:   p.AccessKey,
		SecretKey:   p.SecretKey,
	}
}

// RaftPeer is one member of the cluster's static peer list.
type RaftPeer struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// RaftConfig configures this node's participation in the Raft cluster.
type RaftConfig struct {
	NodeID              string     `yaml:"node_id"`
	DataDir             string     `yaml:"data_dir" default:"./raft"`
	BindAddr            string     `yaml:"bind_addr" default:"127.0.0.1:8300"`
	AdvertiseAddr       string     `yaml:"advertise_addr"`
	GRPCAddr            string     `yaml:"grpc_addr"`
	Peers               []RaftPeer `yaml:"peers"`
	ElectionTimeoutMs   int        `yaml:"election_timeout_ms" default:"1000"`
	HeartbeatIntervalMs int        `yaml:"heartbeat_interval_ms" default:"300"`
	SnapshotThreshold   int        `yaml:"snapshot_threshold" default:"10000"`
	ForceNewCluster     bool       `yaml:"force_new_cluster" default:"false"`
}

// Load reads a YAML document from path, applies default-tag values to any
// field left at its zero value, overlays environment variable overrides,
// and decrypts any `enc:`-prefixed credential fields in place. A
// replication_factor written explicitly in the file as less than 1 is
// rejected rather than replaced by its default.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(op, apperrors.Config, "read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.Wrap(op, apperrors.Config, "parse %s: %w", path, err)
	}

	var explicit struct {
		ReplicationFactor *int `yaml:"replication_factor"`
	}
	if err := yaml.Unmarshal(data, &explicit); err == nil && explicit.ReplicationFactor != nil && *explicit.ReplicationFactor < 1 {
		return nil, apperrors.Wrap(op, apperrors.Config, "replication_factor must be >= 1, got %d", *explicit.ReplicationFactor)
	}

	applyDefaults(&cfg)
	LoadFromEnv(&cfg)

	if err := decryptProviderCredentials(&cfg); err != nil {
		return nil, apperrors.Wrap(op, apperrors.Config, "decrypt credentials: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field-level invariants that yaml/default application
// cannot enforce on its own.
func (c *Config) Validate() error {
	const op = "config.Validate"
	if c.ReplicationFactor < 1 {
		return apperrors.Wrap(op, apperrors.Config, "replication_factor must be >= 1, got %d", c.ReplicationFactor)
	}
	if n := len(c.Providers); n > 0 && c.ReplicationFactor > n {
		c.ReplicationFactor = n
	}
	if c.Compression.Enabled && (c.Compression.Level < 1 || c.Compression.Level > 22) {
		return apperrors.Wrap(op, apperrors.Config, "compression.level must be 1..22, got %d", c.Compression.Level)
	}
	switch c.Keys.Provider {
	case KeyProviderLocal, KeyProviderAzureKeyVault, KeyProviderGCPSecretManager, KeyProviderAWSSecretsManager:
	default:
		return apperrors.Wrap(op, apperrors.Config, "unknown key_provider %q", c.Keys.Provider)
	}
	return nil
}
