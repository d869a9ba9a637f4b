// Package memnet connects MeshBases running in one process. Links can drop,
// delay and partition messages.
package memnet

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/seehuhn/mt19937"
	"go.uber.org/zap"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/proxy"
)

var (
	// ErrUnknownEndpoint is returned when sending to a MeshBase that never joined.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrPartitioned is returned when the link to the receiver is cut.
	ErrPartitioned = errors.New("partitioned")
	// ErrQueueFull is returned when the receiver does not keep up.
	ErrQueueFull = errors.New("queue full")
)

const name = "memnet"

type Opt func(*Network)

func WithLogger(logger *zap.Logger) Opt {
	return func(n *Network) {
		n.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(n *Network) {
		n.clock = clock
	}
}

// WithDropRate drops the given fraction of messages silently.
func WithDropRate(rate float64) Opt {
	return func(n *Network) {
		n.dropRate = rate
	}
}

// WithDelay delays delivery of every message.
func WithDelay(delay time.Duration) Opt {
	return func(n *Network) {
		n.delay = delay
	}
}

// WithQueueSize bounds the number of undelivered messages per endpoint.
func WithQueueSize(size int) Opt {
	return func(n *Network) {
		n.queueSize = size
	}
}

// WithSeed makes drops reproducible.
func WithSeed(seed int64) Opt {
	return func(n *Network) {
		n.rng.Seed(seed)
	}
}

type link struct {
	from, to types.NetMeshBaseIdentifier
}

// Network routes messages between endpoints.
type Network struct {
	logger    *zap.Logger
	clock     clockwork.Clock
	dropRate  float64
	delay     time.Duration
	queueSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	rng       *rand.Rand
	endpoints map[types.NetMeshBaseIdentifier]*Endpoint
	cut       map[link]struct{}
}

func New(opts ...Opt) *Network {
	n := &Network{
		logger:    zap.NewNop(),
		clock:     clockwork.NewRealClock(),
		queueSize: 1024,
		rng:       rand.New(mt19937.New()),
		endpoints: map[types.NetMeshBaseIdentifier]*Endpoint{},
		cut:       map[link]struct{}{},
	}
	n.rng.Seed(time.Now().UnixNano())
	for _, opt := range opts {
		opt(n)
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	return n
}

// Join creates the endpoint of id. Joining twice returns the same endpoint.
func (n *Network) Join(id types.NetMeshBaseIdentifier) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	if e, ok := n.endpoints[id]; ok {
		return e
	}
	e := &Endpoint{
		net:    n,
		id:     id,
		logger: n.logger.With(zap.Stringer("endpoint", id)),
		inbox:  make(chan []byte, n.queueSize),
	}
	n.endpoints[id] = e
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		e.run(n.ctx)
	}()
	return e
}

// Partition cuts the links between a and b in both directions.
func (n *Network) Partition(a, b types.NetMeshBaseIdentifier) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut[link{a, b}] = struct{}{}
	n.cut[link{b, a}] = struct{}{}
}

// Heal restores the links between a and b.
func (n *Network) Heal(a, b types.NetMeshBaseIdentifier) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.cut, link{a, b})
	delete(n.cut, link{b, a})
}

// SetDropRate changes the fraction of dropped messages.
func (n *Network) SetDropRate(rate float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropRate = rate
}

// Close stops delivery and waits for running handlers.
func (n *Network) Close() {
	n.cancel()
	n.wg.Wait()
}

func (n *Network) route(from, to types.NetMeshBaseIdentifier) (*Endpoint, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.endpoints[to]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownEndpoint, to)
	}
	if _, ok := n.cut[link{from, to}]; ok {
		return nil, false, fmt.Errorf("%w: %s -> %s", ErrPartitioned, from, to)
	}
	drop := n.dropRate > 0 && n.rng.Float64() < n.dropRate
	return e, drop, nil
}

// Endpoint is the transport of one MeshBase. Messages are handled one at a
// time in the order they arrive.
type Endpoint struct {
	net    *Network
	id     types.NetMeshBaseIdentifier
	logger *zap.Logger
	inbox  chan []byte

	mu      sync.Mutex
	handler proxy.Handler
}

var _ proxy.Transport = (*Endpoint)(nil)

func (e *Endpoint) Name() string { return name }

func (e *Endpoint) SetHandler(h proxy.Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Send queues data for to. A dropped message is not reported.
func (e *Endpoint) Send(ctx context.Context, to types.NetMeshBaseIdentifier, data []byte) error {
	dst, drop, err := e.net.route(e.id, to)
	if err != nil {
		return err
	}
	if drop {
		e.logger.Debug("dropped message", zap.Stringer("to", to))
		return nil
	}
	data = append([]byte(nil), data...)
	if e.net.delay > 0 {
		e.net.wg.Add(1)
		go func() {
			defer e.net.wg.Done()
			select {
			case <-e.net.ctx.Done():
			case <-e.net.clock.After(e.net.delay):
				if err := dst.push(e.net.ctx, data); err != nil {
					e.logger.Debug("delayed message lost", zap.Stringer("to", to), zap.Error(err))
				}
			}
		}()
		return nil
	}
	return dst.push(ctx, data)
}

func (e *Endpoint) push(ctx context.Context, data []byte) error {
	select {
	case e.inbox <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, e.id)
	}
}

func (e *Endpoint) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-e.inbox:
			e.mu.Lock()
			h := e.handler
			e.mu.Unlock()
			if h == nil {
				e.logger.Debug("no handler, message discarded")
				continue
			}
			if err := h(ctx, data); err != nil {
				e.logger.Debug("handler failed", zap.Error(err))
			}
		}
	}
}
