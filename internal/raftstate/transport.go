package raftstate

import (
	"io"
	"net"
	"time"

	"github.com/hashicorp/raft"
)

// tcpStreamLayer is a raft.StreamLayer over a plain net.Listener, handed to
// raft.NewNetworkTransport so the core consensus RPCs (AppendEntries,
// RequestVote, InstallSnapshot, TimeoutNow) ride hashicorp/raft's own
// length-prefixed msgpack wire protocol rather than a hand-rolled one.
type tcpStreamLayer struct {
	ln        net.Listener
	advertise net.Addr
}

var _ raft.StreamLayer = (*tcpStreamLayer)(nil)

// newTCPStreamLayer listens on bindAddr. advertiseAddr is what peers are
// told to dial; it may differ from bindAddr behind NAT, and defaults to the
// listener's own address when empty.
func newTCPStreamLayer(bindAddr, advertiseAddr string) (*tcpStreamLayer, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	addr := ln.Addr()
	if advertiseAddr != "" {
		resolved, err := net.ResolveTCPAddr("tcp", advertiseAddr)
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
		addr = resolved
	}

	return &tcpStreamLayer{ln: ln, advertise: addr}, nil
}

func (t *tcpStreamLayer) Accept() (net.Conn, error) { return t.ln.Accept() }
func (t *tcpStreamLayer) Close() error               { return t.ln.Close() }
func (t *tcpStreamLayer) Addr() net.Addr             { return t.advertise }

func (t *tcpStreamLayer) Dial(address raft.ServerAddress, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", string(address), timeout)
}

// NewNetworkTransport builds the raft.Transport used for the core consensus
// RPCs, bound to bindAddr and advertising advertiseAddr to peers.
func NewNetworkTransport(bindAddr, advertiseAddr string, logOutput io.Writer) (raft.Transport, error) {
	layer, err := newTCPStreamLayer(bindAddr, advertiseAddr)
	if err != nil {
		return nil, err
	}
	return raft.NewNetworkTransport(layer, 3, 10*time.Second, logOutput), nil
}
