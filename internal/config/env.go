package config

import (
	"os"
	"strconv"
)

// LoadFromEnv overlays environment variable overrides onto cfg. Unset
// variables leave the existing (yaml or default-tag) value untouched.
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("VAULTAIRE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if port := os.Getenv("VAULTAIRE_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.MetricsPort = p
		}
	}
	if logLevel := os.Getenv("VAULTAIRE_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	if cacheSize := os.Getenv("VAULTAIRE_CACHE_SIZE"); cacheSize != "" {
		if size, err := strconv.ParseInt(cacheSize, 10, 64); err == nil {
			cfg.Cache.MemorySize = size
		}
	}

	if v := os.Getenv("VAULTAIRE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("VAULTAIRE_KEYFILE_PATH"); v != "" {
		cfg.KeyfilePath = v
	}
	if v := os.Getenv("VAULTAIRE_KEY_PROVIDER"); v != "" {
		cfg.Keys.Provider = KeyProviderKind(v)
	}
	if v := os.Getenv("VAULTAIRE_VAULT_URL"); v != "" {
		cfg.Keys.VaultURL = v
	}
	if v := os.Getenv("VAULTAIRE_GCP_PROJECT_ID"); v != "" {
		cfg.Keys.GCPProjectID = v
	}
	if v := os.Getenv("VAULTAIRE_AWS_REGION"); v != "" {
		cfg.Keys.AWSRegion = v
	}
	if v := os.Getenv("VAULTAIRE_SECRET_PREFIX"); v != "" {
		cfg.Keys.SecretPrefix = v
	}

	if v := os.Getenv("VAULTAIRE_REPLICATION_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReplicationFactor = n
		}
	}

	if v := os.Getenv("VAULTAIRE_RAFT_NODE_ID"); v != "" {
		cfg.Raft.NodeID = v
	}
	if v := os.Getenv("VAULTAIRE_RAFT_GRPC_ADDR"); v != "" {
		cfg.Raft.GRPCAddr = v
	}
}

// GetEnvOrDefault returns the named environment variable, or defaultValue
// if it is unset or empty.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
