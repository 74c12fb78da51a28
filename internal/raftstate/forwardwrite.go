package raftstate

import (
	"bytes"
	"context"
	"encoding/gob"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// forward_write lets a follower that receives a client write re-propose it
// to the current leader instead of rejecting it outright. This is the one
// RPC surface in this package that is ours to define (the consensus RPCs
// themselves ride raft.NetworkTransport, see transport.go), so it is
// hand-rolled over grpc with a gob codec instead of protobuf: no .proto file,
// no generated stubs, just a manually authored ServiceDesc.

const gobCodecName = "gob"

// gobCodec implements grpc/encoding.Codec by gob-encoding whatever struct
// pointer grpc hands it, so ForwardWrite can reuse Command/Result directly
// instead of defining protobuf message types for them.
type gobCodec struct{}

func (gobCodec) Name() string { return gobCodecName }

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func init() {
	encoding.RegisterCodec(gobCodec{})
}

// ForwardWriteHandler is implemented by whatever applies a forwarded write
// against the current Raft leader (see node.go's Node.Apply).
type ForwardWriteHandler interface {
	ForwardWrite(ctx context.Context, cmd *Command) (*Result, error)
}

const forwardWriteServiceName = "vaultaire.raftstate.ForwardWrite"

func forwardWriteHandlerFunc(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var cmd Command
	if err := dec(&cmd); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ForwardWriteHandler).ForwardWrite(ctx, &cmd)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: forwardWriteServiceName + "/ForwardWrite"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ForwardWriteHandler).ForwardWrite(ctx, req.(*Command))
	}
	return interceptor(ctx, &cmd, info, handler)
}

// forwardWriteServiceDesc is the hand-authored equivalent of what protoc
// would otherwise generate for a one-RPC service.
var forwardWriteServiceDesc = grpc.ServiceDesc{
	ServiceName: forwardWriteServiceName,
	HandlerType: (*ForwardWriteHandler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ForwardWrite",
			Handler:    forwardWriteHandlerFunc,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raftstate/forwardwrite.go",
}

// RegisterForwardWriteServer mounts h on srv under the service's manually
// authored descriptor.
func RegisterForwardWriteServer(srv *grpc.Server, h ForwardWriteHandler) {
	srv.RegisterService(&forwardWriteServiceDesc, h)
}

// ForwardWriteClient calls ForwardWrite against a specific leader address.
// A circuit breaker guards the call so a follower stuck pointed at a dead
// leader address fails fast instead of blocking every forwarded write on
// the full RPC timeout until the next leader is discovered.
type ForwardWriteClient struct {
	conn    *grpc.ClientConn
	breaker *circuitBreaker
}

// NewForwardWriteClient dials target (a raft.ServerAddress-style host:port)
// using the gob codec instead of protobuf.
func NewForwardWriteClient(target string, logger *zap.Logger, opts ...grpc.DialOption) (*ForwardWriteClient, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(gobCodecName)),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	dialOpts = append(dialOpts, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &ForwardWriteClient{conn: conn, breaker: newCircuitBreaker(logger)}, nil
}

// Close releases the underlying connection.
func (c *ForwardWriteClient) Close() error { return c.conn.Close() }

// ForwardWrite proposes cmd to the leader at the other end of the connection.
func (c *ForwardWriteClient) ForwardWrite(ctx context.Context, cmd *Command) (*Result, error) {
	var res Result
	err := c.breaker.execute(ctx, func() error {
		return c.conn.Invoke(ctx, "/"+forwardWriteServiceName+"/ForwardWrite", cmd, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
