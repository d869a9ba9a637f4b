// Package p2p carries xpriso messages over libp2p streams. A MeshBase on this
// transport is identified as p2p:<peer id>.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-msgio"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/proxy"
)

// ProtocolID of the xpriso stream protocol.
const ProtocolID = "/netmesh/xpriso/1.0.0"

var (
	// ErrNotP2P is returned for identifiers without the p2p scheme.
	ErrNotP2P = errors.New("not a p2p meshbase identifier")
	// ErrTooLarge is returned for messages above the size limit.
	ErrTooLarge = errors.New("message too large")
)

// Identifier of the MeshBase reachable as pid.
func Identifier(pid peer.ID) types.NetMeshBaseIdentifier {
	return types.MustFromExternalForm(types.SchemeP2P + ":" + pid.String())
}

// PeerID of a p2p MeshBase identifier.
func PeerID(id types.NetMeshBaseIdentifier) (peer.ID, error) {
	raw, ok := strings.CutPrefix(id.String(), types.SchemeP2P+":")
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotP2P, id)
	}
	return peer.Decode(raw)
}

// Config of the p2p transport.
type Config struct {
	// MessageSizeLimit bounds a single encoded message.
	MessageSizeLimit int `mapstructure:"message-size-limit"`
	// QueueSize is the number of incoming streams kept waiting for a worker.
	// Streams beyond it are reset.
	QueueSize int `mapstructure:"queue-size"`
	// RequestsPerInterval and Interval limit the rate of handled messages.
	RequestsPerInterval int           `mapstructure:"requests-per-interval"`
	Interval            time.Duration `mapstructure:"interval"`
	// StreamTimeout bounds reading or writing one message.
	StreamTimeout time.Duration `mapstructure:"stream-timeout"`
}

func DefaultConfig() Config {
	return Config{
		MessageSizeLimit:    16 << 20,
		QueueSize:           1000,
		RequestsPerInterval: 1000,
		Interval:            time.Second,
		StreamTimeout:       25 * time.Second,
	}
}

type Opt func(*Transport)

func WithLogger(logger *zap.Logger) Opt {
	return func(t *Transport) {
		t.logger = logger
	}
}

func WithConfig(cfg Config) Opt {
	return func(t *Transport) {
		t.cfg = cfg
	}
}

type incoming struct {
	stream   network.Stream
	received time.Time
}

// Transport sends every message on a new stream. Incoming streams are queued
// and handled by Run.
type Transport struct {
	logger *zap.Logger
	cfg    Config
	h      host.Host
	queue  chan incoming

	mu      sync.Mutex
	handler proxy.Handler
}

var _ proxy.Transport = (*Transport)(nil)

func New(h host.Host, opts ...Opt) *Transport {
	t := &Transport{
		logger: zap.NewNop(),
		cfg:    DefaultConfig(),
		h:      h,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.queue = make(chan incoming, t.cfg.QueueSize)
	h.SetStreamHandler(protocol.ID(ProtocolID), t.accept)
	return t
}

// Identifier of the local MeshBase.
func (t *Transport) Identifier() types.NetMeshBaseIdentifier { return Identifier(t.h.ID()) }

func (t *Transport) Name() string { return "p2p" }

func (t *Transport) SetHandler(h proxy.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *Transport) accept(stream network.Stream) {
	select {
	case t.queue <- incoming{stream: stream, received: time.Now()}:
		queued.Set(float64(len(t.queue)))
	default:
		dropped.Inc()
		stream.Reset()
	}
}

// Run handles incoming messages until ctx is canceled.
func (t *Transport) Run(ctx context.Context) error {
	limit := rate.NewLimiter(rate.Every(t.cfg.Interval/time.Duration(t.cfg.RequestsPerInterval)), t.cfg.RequestsPerInterval)
	var eg errgroup.Group
	eg.SetLimit(t.cfg.QueueSize)
	defer t.h.RemoveStreamHandler(protocol.ID(ProtocolID))
	for {
		select {
		case <-ctx.Done():
			return eg.Wait()
		case in := <-t.queue:
			queueLatency.Observe(time.Since(in.received).Seconds())
			if err := limit.Wait(ctx); err != nil {
				in.stream.Reset()
				return eg.Wait()
			}
			eg.Go(func() error {
				t.serve(ctx, in.stream)
				return nil
			})
		}
	}
}

func (t *Transport) serve(ctx context.Context, stream network.Stream) {
	defer stream.Close()
	remote := stream.Conn().RemotePeer()
	_ = stream.SetReadDeadline(time.Now().Add(t.cfg.StreamTimeout))
	rd := msgio.NewVarintReaderSize(stream, t.cfg.MessageSizeLimit)
	data, err := rd.ReadMsg()
	if err != nil {
		received.WithLabelValues("failed").Inc()
		t.logger.Debug("failed to read message",
			zap.Stringer("peer", remote),
			zap.Stringer("address", stream.Conn().RemoteMultiaddr()),
			zap.Error(err),
		)
		stream.Reset()
		return
	}
	defer rd.ReleaseMsg(data)

	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h == nil {
		received.WithLabelValues("unhandled").Inc()
		return
	}
	if err := h(ctx, data); err != nil {
		received.WithLabelValues("rejected").Inc()
		t.logger.Debug("handler rejected message", zap.Stringer("peer", remote), zap.Error(err))
		return
	}
	received.WithLabelValues("ok").Inc()
}

// Send writes data on a new stream to the peer of to. The peer must be
// connected or its addresses known to the peerstore.
func (t *Transport) Send(ctx context.Context, to types.NetMeshBaseIdentifier, data []byte) error {
	if len(data) > t.cfg.MessageSizeLimit {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, len(data), t.cfg.MessageSizeLimit)
	}
	pid, err := PeerID(to)
	if err != nil {
		return err
	}
	start := time.Now()
	stream, err := t.h.NewStream(ctx, pid, protocol.ID(ProtocolID))
	if err != nil {
		sent.WithLabelValues("failed").Inc()
		return fmt.Errorf("open stream to %s: %w", to, err)
	}
	_ = stream.SetWriteDeadline(time.Now().Add(t.cfg.StreamTimeout))
	if err := msgio.NewVarintWriter(stream).WriteMsg(data); err != nil {
		stream.Reset()
		sent.WithLabelValues("failed").Inc()
		return fmt.Errorf("write to %s: %w", to, err)
	}
	if err := stream.Close(); err != nil {
		sent.WithLabelValues("failed").Inc()
		return fmt.Errorf("close stream to %s: %w", to, err)
	}
	sent.WithLabelValues("ok").Inc()
	sendLatency.Observe(time.Since(start).Seconds())
	return nil
}
