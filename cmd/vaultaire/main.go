// cmd/vaultaire/main.go
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FairForge/vaultaire/internal/adminapi"
	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/audit"
	"github.com/FairForge/vaultaire/internal/backup"
	"github.com/FairForge/vaultaire/internal/catalog"
	"github.com/FairForge/vaultaire/internal/config"
	"github.com/FairForge/vaultaire/internal/distributor"
	"github.com/FairForge/vaultaire/internal/metrics"
	"github.com/FairForge/vaultaire/internal/multipart"
	"github.com/FairForge/vaultaire/internal/pipeline"
	"github.com/FairForge/vaultaire/internal/raftstate"
	"github.com/FairForge/vaultaire/internal/storage"
	"github.com/FairForge/vaultaire/internal/types"
	"github.com/FairForge/vaultaire/internal/vchunk"
)

func main() {
	configPath := os.Getenv("VAULTAIRE_CONFIG")
	if configPath == "" {
		configPath = "./vaultaire.yaml"
	}
	passphrase := os.Getenv("VAULTAIRE_KEYSTORE_PASSPHRASE")

	if keyHex := os.Getenv("VAULTAIRE_CREDENTIALS_KEY"); keyHex != "" {
		key, err := decodeHexKey(keyHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid VAULTAIRE_CREDENTIALS_KEY: %v\n", err)
			os.Exit(1)
		}
		config.SetCredentialsKey(key)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, configPath, passphrase, logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, configPath, passphrase string, logger *zap.Logger) error {
	watcher, err := config.NewWatcher(ctx, configPath, passphrase, logger)
	if err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	retryPolicy := catalog.NewRetryPolicy(catalog.WithLogger(logger))
	cat, err := catalog.OpenWithRetry(ctx, cfg.Catalog.ToCatalog(), retryPolicy)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = cat.Close() }()

	if err := cat.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}

	trail := audit.New(logger)

	reg := metrics.New()

	providers, backends, err := reconcileProviders(ctx, cfg, cat, logger)
	if err != nil {
		return fmt.Errorf("reconcile providers: %w", err)
	}

	dist, err := distributor.New(distributionStrategy(cfg.Distribution.Strategy), providers)
	if err != nil {
		return fmt.Errorf("build distributor: %w", err)
	}

	chunker, err := vchunk.New(cfg.Chunking.ToTypes())
	if err != nil {
		return fmt.Errorf("build chunker: %w", err)
	}

	compressor, err := vchunk.NewCompressor(compressionAlgo(cfg.Compression))
	if err != nil {
		return fmt.Errorf("build compressor: %w", err)
	}

	pl := pipeline.New(chunker, compressor, watcher.Keys(), dist, backends, cat,
		pipeline.Config{ReplicationFactor: cfg.ReplicationFactor, CompressionLevel: cfg.Compression.Level},
		logger)
	pl.SetAudit(trail)
	pl.SetMetrics(reg)

	mp := multipart.New(cat, pl)
	_ = mp // wired into the S3-compatible surface, out of scope here

	backupRunner := backup.New(cat, pl, logger)
	_ = backupRunner // invoked on demand by an operator-triggered backup job, not at startup

	var node *raftstate.Node
	if cfg.Raft.NodeID != "" {
		node, err = raftstate.NewNode(raftNodeConfig(cfg.Raft), cat, trail, reg, logger)
		if err != nil {
			return fmt.Errorf("start raft node: %w", err)
		}
		defer func() { _ = node.Shutdown() }()
	}

	admin := adminapi.NewServer(
		fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		reg,
		clusterStatus(node),
		cat,
		logger,
	)
	admin.SetGCRunner(pl)

	errCh := make(chan error, 1)
	go func() {
		errCh <- admin.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("vaultaire node started",
		zap.Int("admin_port", cfg.Server.MetricsPort),
		zap.String("raft_node_id", cfg.Raft.NodeID))

	select {
	case <-sigCh:
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin api: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return admin.Shutdown(shutdownCtx)
}

// reconcileProviders ensures every configured provider exists as a catalog
// row (inserting it on first boot, reusing the existing row on every
// subsequent one since `providers.name` is unique) and opens a storage
// Backend for each.
func reconcileProviders(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, logger *zap.Logger) ([]types.Provider, map[int64]storage.Backend, error) {
	existing, err := cat.ListProviders(ctx)
	if err != nil {
		return nil, nil, err
	}
	byName := make(map[string]types.Provider, len(existing))
	for _, p := range existing {
		byName[p.Name] = p
	}

	providers := make([]types.Provider, 0, len(cfg.Providers))
	backends := make(map[int64]storage.Backend, len(cfg.Providers))

	for _, pc := range cfg.Providers {
		p, ok := byName[pc.Name]
		if !ok {
			id, err := cat.InsertProvider(ctx, types.Provider{
				Name:   pc.Name,
				Type:   pc.Type,
				Bucket: pc.Bucket,
				Region: pc.Region,
				Weight: pc.Weight,
			})
			if err != nil && apperrors.KindOf(err) != apperrors.Duplicate {
				return nil, nil, err
			}
			if err != nil {
				reloaded, lookupErr := cat.ListProviders(ctx)
				if lookupErr != nil {
					return nil, nil, lookupErr
				}
				for _, rp := range reloaded {
					if rp.Name == pc.Name {
						p = rp
					}
				}
			} else {
				p = types.Provider{ID: id, Name: pc.Name, Type: pc.Type, Bucket: pc.Bucket, Region: pc.Region, Weight: pc.Weight}
			}
		}

		backend, err := storage.Open(ctx, pc.ToStorage(), logger, cfg.StorageDataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open backend %s: %w", pc.Name, err)
		}

		providers = append(providers, p)
		backends[p.ID] = backend
	}

	return providers, backends, nil
}

func distributionStrategy(s types.DistributionStrategy) distributor.Strategy {
	if s == types.DistributionWeighted {
		return distributor.Weighted
	}
	return distributor.RoundRobin
}

func compressionAlgo(cfg config.CompressionConfig) vchunk.CompressionAlgo {
	if !cfg.Enabled {
		return vchunk.CompressionNone
	}
	return vchunk.CompressionZstd
}

func raftNodeConfig(rc config.RaftConfig) raftstate.NodeConfig {
	peers := make([]raftstate.Peer, 0, len(rc.Peers))
	for _, p := range rc.Peers {
		peers = append(peers, raftstate.Peer{ID: p.ID, Addr: p.Addr})
	}
	return raftstate.NodeConfig{
		NodeID:            rc.NodeID,
		BindAddr:          rc.BindAddr,
		AdvertiseAddr:     rc.AdvertiseAddr,
		DataDir:           rc.DataDir,
		Peers:             peers,
		ElectionTimeout:   time.Duration(rc.ElectionTimeoutMs) * time.Millisecond,
		HeartbeatTimeout:  time.Duration(rc.HeartbeatIntervalMs) * time.Millisecond,
		SnapshotThreshold: uint64(rc.SnapshotThreshold),
		ForceNewCluster:   rc.ForceNewCluster,
	}
}

// clusterStatus adapts a possibly-nil *raftstate.Node to adminapi.ClusterStatus,
// so a single-node (non-Raft) deployment can still answer /status sensibly.
type clusterStatusAdapter struct {
	node *raftstate.Node
}

func (c clusterStatusAdapter) IsLeader() bool {
	return c.node == nil || c.node.IsLeader()
}

func (c clusterStatusAdapter) LeaderAddr() string {
	if c.node == nil {
		return ""
	}
	return c.node.LeaderAddr()
}

func (c clusterStatusAdapter) AppliedIndex() uint64 {
	if c.node == nil {
		return 0
	}
	return c.node.AppliedIndex()
}

func clusterStatus(node *raftstate.Node) adminapi.ClusterStatus {
	return clusterStatusAdapter{node: node}
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.Set(level); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zapCfg.Build()
}

func decodeHexKey(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
