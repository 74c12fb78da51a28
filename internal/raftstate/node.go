package raftstate

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/raft"
	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/audit"
	"github.com/FairForge/vaultaire/internal/catalog"
	"github.com/FairForge/vaultaire/internal/metrics"
)

// Peer identifies one voter in the cluster's configured membership.
type Peer struct {
	ID   string
	Addr string
}

// NodeConfig configures a single Raft node.
type NodeConfig struct {
	NodeID              string
	BindAddr            string
	AdvertiseAddr       string
	DataDir             string
	Peers               []Peer
	ElectionTimeout     time.Duration
	HeartbeatTimeout    time.Duration
	SnapshotThreshold   uint64
	ForceNewCluster     bool
	ApplyTimeout        time.Duration
}

// Node wraps a *raft.Raft bound to a catalog-backed FSM, and drives
// leadership-gated bookkeeping: audit events on leader change and a
// Prometheus gauge tracking which node currently believes itself leader.
type Node struct {
	raft      *raft.Raft
	fsm       *FSM
	logs      *BoltStore
	transport raft.Transport
	cfg       NodeConfig
	audit     *audit.Trail
	metrics   *metrics.Registry
	logger    *zap.Logger

	stopCh chan struct{}
}

var _ ForwardWriteHandler = (*Node)(nil)

// NewNode opens (or creates) the on-disk Raft log/snapshot stores under
// cfg.DataDir, starts the network transport, and either joins the existing
// configuration or bootstraps a fresh single-shot cluster.
func NewNode(cfg NodeConfig, cat *catalog.Catalog, trail *audit.Trail, reg *metrics.Registry, logger *zap.Logger) (*Node, error) {
	const fn = "raftstate.NewNode"
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, apperrors.Wrap(fn, apperrors.Storage, "create data dir %s: %w", cfg.DataDir, err)
	}

	logs, err := NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, apperrors.Wrap(fn, apperrors.Storage, "open log store: %w", err)
	}

	snaps, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, &zapWriter{logger})
	if err != nil {
		return nil, apperrors.Wrap(fn, apperrors.Storage, "open snapshot store: %w", err)
	}

	trans, err := NewNetworkTransport(cfg.BindAddr, cfg.AdvertiseAddr, &zapWriter{logger})
	if err != nil {
		return nil, apperrors.Wrap(fn, apperrors.Internal, "open transport: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	if cfg.ElectionTimeout > 0 {
		raftCfg.ElectionTimeout = cfg.ElectionTimeout
		raftCfg.LeaderLeaseTimeout = cfg.ElectionTimeout
	}
	if cfg.HeartbeatTimeout > 0 {
		raftCfg.HeartbeatTimeout = cfg.HeartbeatTimeout
	}
	if cfg.SnapshotThreshold > 0 {
		raftCfg.SnapshotThreshold = cfg.SnapshotThreshold
	}

	fsm := NewFSM(cat, logger)

	if cfg.ForceNewCluster {
		if err := raft.RecoverCluster(raftCfg, fsm, logs, logs, snaps, trans, bootstrapConfiguration(cfg)); err != nil {
			return nil, apperrors.Wrap(fn, apperrors.Internal, "recover cluster: %w", err)
		}
	} else if shouldBootstrap(cfg) {
		if err := raft.BootstrapCluster(raftCfg, logs, logs, snaps, trans, bootstrapConfiguration(cfg)); err != nil && err != raft.ErrCantBootstrap {
			return nil, apperrors.Wrap(fn, apperrors.Internal, "bootstrap cluster: %w", err)
		}
	}

	r, err := raft.NewRaft(raftCfg, fsm, logs, logs, snaps, trans)
	if err != nil {
		return nil, apperrors.Wrap(fn, apperrors.Internal, "start raft: %w", err)
	}

	n := &Node{
		raft:      r,
		fsm:       fsm,
		logs:      logs,
		transport: trans,
		cfg:       cfg,
		audit:     trail,
		metrics:   reg,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
	go n.watchLeadership()
	return n, nil
}

// shouldBootstrap decides whether this node is responsible for calling
// raft.BootstrapCluster: the lowest server ID among the configured peers
// bootstraps once, every other node starts expecting to be added as a
// learner/voter by the bootstrapping leader.
func shouldBootstrap(cfg NodeConfig) bool {
	if len(cfg.Peers) == 0 {
		return true
	}
	ids := make([]string, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids[0] == cfg.NodeID
}

func bootstrapConfiguration(cfg NodeConfig) raft.Configuration {
	servers := make([]raft.Server, 0, len(cfg.Peers))
	if len(cfg.Peers) == 0 {
		servers = append(servers, raft.Server{
			ID:      raft.ServerID(cfg.NodeID),
			Address: raft.ServerAddress(cfg.AdvertiseAddr),
		})
		return raft.Configuration{Servers: servers}
	}
	for _, p := range cfg.Peers {
		servers = append(servers, raft.Server{
			Suffrage: raft.Voter,
			ID:       raft.ServerID(p.ID),
			Address:  raft.ServerAddress(p.Addr),
		})
	}
	return raft.Configuration{Servers: servers}
}

// watchLeadership records an audit event and flips the leadership gauge on
// every transition raft.LeaderCh reports.
func (n *Node) watchLeadership() {
	for {
		select {
		case isLeader, ok := <-n.raft.LeaderCh():
			if !ok {
				return
			}
			if n.metrics != nil {
				if isLeader {
					n.metrics.RaftIsLeader.Set(1)
				} else {
					n.metrics.RaftIsLeader.Set(0)
				}
			}
			if n.audit != nil {
				n.audit.Record(audit.KindRaftLeaderChange, map[string]interface{}{
					"node_id":   n.cfg.NodeID,
					"is_leader": isLeader,
				})
			}
		case <-n.stopCh:
			return
		}
	}
}

// IsLeader reports whether this node currently believes it is the Raft
// leader.
func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current leader, or "" if unknown.
func (n *Node) LeaderAddr() string {
	return string(n.raft.Leader())
}

// Apply proposes op/args through consensus and returns the decoded Result.
// On a non-leader node, it returns raft.ErrNotLeader: callers should forward
// the write to LeaderAddr via a ForwardWriteClient instead of retrying here.
func (n *Node) Apply(ctx context.Context, op Op, args interface{}) (*Result, error) {
	data, err := Encode(op, args)
	if err != nil {
		return nil, err
	}
	return n.applyEncoded(ctx, op, data)
}

func (n *Node) applyEncoded(ctx context.Context, op Op, data []byte) (*Result, error) {
	const fn = "raftstate.Node.Apply"

	timeout := n.cfg.ApplyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	future := n.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return nil, apperrors.Wrap(fn, apperrors.Internal, "apply %s: %w", op, err)
	}

	res, ok := future.Response().(*Result)
	if !ok {
		return nil, apperrors.Wrap(fn, apperrors.Internal, "unexpected apply response for %s", op)
	}
	if res.Err != "" {
		return res, apperrors.Wrap(fn, apperrors.Database, "%s: %s", op, res.Err)
	}
	return res, nil
}

// ForwardWrite implements ForwardWriteHandler: a follower that received a
// client write forwards it here so the leader can Apply it locally. The
// command is re-proposed as-is rather than decoded and re-encoded, since
// its Args payload is opaque to this package until FSM.Apply dispatches on
// Op.
func (n *Node) ForwardWrite(ctx context.Context, cmd *Command) (*Result, error) {
	if !n.IsLeader() {
		return nil, raft.ErrNotLeader
	}
	data, err := encodeCommand(*cmd)
	if err != nil {
		return nil, err
	}
	return n.applyEncoded(ctx, cmd.Op, data)
}

// AddVoter adds id/addr as a voting member, matching spec's
// add-as-learner-then-promote flow by relying on raft's own AddVoter
// semantics (it catches the new node up before granting it a vote).
func (n *Node) AddVoter(id, addr string, prevIndex uint64, timeout time.Duration) error {
	return n.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), prevIndex, timeout).Error()
}

// RemoveServer removes id from the cluster's membership.
func (n *Node) RemoveServer(id string, prevIndex uint64, timeout time.Duration) error {
	return n.raft.RemoveServer(raft.ServerID(id), prevIndex, timeout).Error()
}

// AppliedIndex returns the last log index applied to the FSM.
func (n *Node) AppliedIndex() uint64 {
	return n.raft.AppliedIndex()
}

// Shutdown stops the Raft node and closes its log store.
func (n *Node) Shutdown() error {
	close(n.stopCh)
	if err := n.raft.Shutdown().Error(); err != nil {
		return err
	}
	return n.logs.Close()
}

// zapWriter adapts a *zap.Logger to io.Writer for raft's own log output.
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Write(p []byte) (int, error) {
	w.logger.Info(string(p))
	return len(p), nil
}
