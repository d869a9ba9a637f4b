// Package proxy exchanges xpriso messages with remote MeshBases and applies
// the ones received to the local MeshBase.
package proxy

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/log"
	"github.com/infogrid/netmesh/netmesh"
	"github.com/infogrid/netmesh/scheduler"
	"github.com/infogrid/netmesh/xpriso"
)

type Opt func(*Manager)

func WithLogger(logger *zap.Logger) Opt {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithConfig(cfg Config) Opt {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

func WithPolicy(policy Policy) Opt {
	return func(m *Manager) {
		m.policy = policy
	}
}

// Manager owns the proxies of one MeshBase. It sends what the MeshBase
// commits and applies what the transport delivers.
type Manager struct {
	logger    *zap.Logger
	cfg       Config
	policy    Policy
	mb        *netmesh.MeshBase
	transport Transport
	sched     *scheduler.Scheduler

	mu      sync.Mutex
	closed  bool
	proxies map[types.NetMeshBaseIdentifier]*Proxy
	ceased  map[types.NetMeshBaseIdentifier]struct{}
	// receiving state of lost proxies, picked up by their replacement
	carried map[types.NetMeshBaseIdentifier]inbound
}

// New creates the Manager and registers it with the MeshBase and the transport.
func New(mb *netmesh.MeshBase, transport Transport, sched *scheduler.Scheduler, opts ...Opt) *Manager {
	m := &Manager{
		logger:    zap.NewNop(),
		cfg:       DefaultConfig(),
		mb:        mb,
		transport: transport,
		sched:     sched,
		proxies:   map[types.NetMeshBaseIdentifier]*Proxy{},
		ceased:    map[types.NetMeshBaseIdentifier]struct{}{},
		carried:   map[types.NetMeshBaseIdentifier]inbound{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy == nil {
		m.policy = DefaultPolicy{Logger: m.logger}
	}
	mb.SetReplicator(m)
	transport.SetHandler(m.Handle)
	return m
}

// Proxy returns the proxy toward remote, if one exists.
func (m *Manager) Proxy(remote types.NetMeshBaseIdentifier) (*Proxy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[remote]
	return p, ok
}

// Remotes returns the MeshBases this Manager has proxies for.
func (m *Manager) Remotes() []types.NetMeshBaseIdentifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	rst := make([]types.NetMeshBaseIdentifier, 0, len(m.proxies))
	for remote := range m.proxies {
		rst = append(rst, remote)
	}
	slices.SortFunc(rst, func(a, b types.NetMeshBaseIdentifier) int {
		return cmp.Compare(a.String(), b.String())
	})
	return rst
}

func (m *Manager) proxy(remote types.NetMeshBaseIdentifier) (*Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if _, ok := m.ceased[remote]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCeased, remote)
	}
	p, ok := m.proxies[remote]
	if !ok {
		p = newProxy(m, remote, m.carried[remote])
		delete(m.carried, remote)
		m.proxies[remote] = p
		m.logger.Debug("created proxy", zap.Stringer("remote", remote))
	}
	return p, nil
}

// Replicate implements netmesh.Replicator.
func (m *Manager) Replicate(ctx context.Context, out netmesh.Outbox) {
	resp, _ := ctx.Value(responseKey{}).(*response)
	for to, msg := range out {
		if resp != nil && !resp.sent && resp.to == to {
			msg.ResponseID = resp.id
			msg.ResponseSession = resp.session
			resp.sent = true
		}
		p, err := m.proxy(to)
		if err != nil {
			m.logger.Warn("dropping outgoing message",
				log.ZContext(ctx),
				zap.Object("message", msg),
				zap.Error(err),
			)
			continue
		}
		p.enqueue(msg)
	}
}

// Handle decodes, checks and applies one message received from the transport.
func (m *Manager) Handle(ctx context.Context, data []byte) error {
	msg, err := xpriso.Decode(data)
	if err != nil {
		receivedInvalid.Inc()
		return err
	}
	if err := msg.Check(); err != nil {
		receivedInvalid.Inc()
		return err
	}
	if msg.Receiver != m.mb.Identifier() {
		receivedInvalid.Inc()
		return fmt.Errorf("%w: %s", ErrWrongReceiver, msg.Receiver)
	}
	ctx = log.WithNewRequestID(ctx,
		zap.Stringer("sender", msg.Sender),
		zap.Int64("request", msg.RequestID),
	)
	if msg.CeaseCommunications {
		m.logger.Info("remote ceased communications", log.ZContext(ctx))
		return m.cease(ctx, msg.Sender, false)
	}
	p, err := m.proxy(msg.Sender)
	if err != nil {
		receivedDropped.Inc()
		return err
	}
	return p.receive(ctx, msg)
}

// lose drops a proxy that exhausted its retries. Replicas routing toward the
// lock or home replica through it lose that route. The next proxy to the
// same remote starts a new outgoing session and keeps the incoming one.
func (m *Manager) lose(ctx context.Context, p *Proxy, cerr *CommunicationError) {
	p.applyMu.Lock()
	p.close()
	m.mu.Lock()
	if m.proxies[p.remote] == p {
		delete(m.proxies, p.remote)
		if !m.closed {
			m.carried[p.remote] = p.in
		}
	}
	m.mu.Unlock()
	p.applyMu.Unlock()
	lost.Inc()
	m.logger.Warn("proxy lost", zap.Stringer("remote", p.remote), zap.Error(cerr))
	if err := m.dropProxy(ctx, p.remote); err != nil {
		m.logger.Error("failed to drop lost proxy from replicas", zap.Stringer("remote", p.remote), zap.Error(err))
	}
}

func (m *Manager) dropProxy(ctx context.Context, remote types.NetMeshBaseIdentifier) error {
	ids, err := m.mb.ReplicasWithProxy(ctx, remote)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return m.mb.Update(netmesh.WithSu(ctx), func(tx *netmesh.Tx) error {
		for _, id := range ids {
			if err := tx.DropProxy(remote, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Manager) resynchronizeAll(ctx context.Context, remote types.NetMeshBaseIdentifier) error {
	ids, err := m.mb.ReplicasWithProxy(ctx, remote)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return m.mb.Update(netmesh.WithSu(ctx), func(tx *netmesh.Tx) error {
		for _, id := range ids {
			tx.ResynchronizeVia(remote, id)
		}
		return nil
	})
}

// Cease ends communication with remote. The remote is told so, and replicas
// forget it as a proxy. Obtain from remote starts over.
func (m *Manager) Cease(ctx context.Context, remote types.NetMeshBaseIdentifier) error {
	return m.cease(ctx, remote, true)
}

func (m *Manager) cease(ctx context.Context, remote types.NetMeshBaseIdentifier, notify bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.ceased[remote] = struct{}{}
	p := m.proxies[remote]
	delete(m.proxies, remote)
	delete(m.carried, remote)
	m.mu.Unlock()
	if p != nil {
		p.close()
	}
	if notify {
		msg := &xpriso.Message{Sender: m.mb.Identifier(), Receiver: remote, CeaseCommunications: true}
		data, err := xpriso.Encode(msg)
		if err != nil {
			return err
		}
		sendCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		err = m.transport.Send(sendCtx, remote, data)
		cancel()
		sentCease.Inc()
		if err != nil {
			m.logger.Debug("failed to deliver cease", zap.Stringer("remote", remote), zap.Error(err))
		}
	}
	return m.dropProxy(ctx, remote)
}

// Obtain asks via for replicas of ids and waits until all of them arrived.
func (m *Manager) Obtain(ctx context.Context, via types.NetMeshBaseIdentifier, ids ...types.NetMeshObjectIdentifier) error {
	m.mu.Lock()
	delete(m.ceased, via)
	m.mu.Unlock()
	missing := false
	if err := m.mb.Update(ctx, func(tx *netmesh.Tx) error {
		for _, id := range ids {
			exists, err := tx.RequestFirstTime(via, id)
			if err != nil {
				return err
			}
			missing = missing || !exists
		}
		return nil
	}); err != nil {
		return err
	}
	if !missing {
		return nil
	}
	return m.wait(ctx, func(lookup func(types.NetMeshObjectIdentifier) (*netmesh.MeshObject, bool)) bool {
		for _, id := range ids {
			if _, ok := lookup(id); !ok {
				return false
			}
		}
		return true
	})
}

// ObtainLocks requests the locks of ids and waits until all are held here.
func (m *Manager) ObtainLocks(ctx context.Context, ids ...types.NetMeshObjectIdentifier) error {
	return m.obtain(ctx, ids, (*netmesh.Tx).RequestLock, (*netmesh.MeshObject).HasLock, (*netmesh.MeshObject).LockRouteLost)
}

// ObtainHomeReplicas requests home status for ids and waits until it moved here.
func (m *Manager) ObtainHomeReplicas(ctx context.Context, ids ...types.NetMeshObjectIdentifier) error {
	return m.obtain(ctx, ids, (*netmesh.Tx).RequestHomeReplica, (*netmesh.MeshObject).IsHomeReplica, (*netmesh.MeshObject).HomeRouteLost)
}

func (m *Manager) obtain(
	ctx context.Context,
	ids []types.NetMeshObjectIdentifier,
	request func(*netmesh.Tx, types.NetMeshObjectIdentifier) (bool, error),
	held, routeLost func(*netmesh.MeshObject) bool,
) error {
	pending := false
	if err := m.mb.Update(ctx, func(tx *netmesh.Tx) error {
		for _, id := range ids {
			ok, err := request(tx, id)
			if err != nil {
				return err
			}
			pending = pending || !ok
		}
		return nil
	}); err != nil {
		return err
	}
	if !pending {
		return nil
	}
	var lostID *types.NetMeshObjectIdentifier
	err := m.wait(ctx, func(lookup func(types.NetMeshObjectIdentifier) (*netmesh.MeshObject, bool)) bool {
		done := true
		for _, id := range ids {
			obj, ok := lookup(id)
			switch {
			case !ok || routeLost(obj):
				lostID = &id
				return true
			case !held(obj):
				done = false
			}
		}
		return done
	})
	if err != nil {
		return err
	}
	if lostID != nil {
		return fmt.Errorf("%s: %w", *lostID, ErrLost)
	}
	return nil
}

func (m *Manager) wait(ctx context.Context, cond func(func(types.NetMeshObjectIdentifier) (*netmesh.MeshObject, bool)) bool) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.LockWaitTimeout)
	defer cancel()
	err := m.mb.WaitUntil(ctx, cond)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, m.cfg.LockWaitTimeout)
	}
	return err
}

// Resynchronize asks for fresh copies of ids from the replicas holding their locks.
func (m *Manager) Resynchronize(ctx context.Context, ids ...types.NetMeshObjectIdentifier) error {
	return m.mb.Update(ctx, func(tx *netmesh.Tx) error {
		for _, id := range ids {
			if err := tx.RequestResynchronize(id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close stops all proxies. Messages committed afterwards are dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	proxies := m.proxies
	m.proxies = map[types.NetMeshBaseIdentifier]*Proxy{}
	m.mu.Unlock()
	for _, p := range proxies {
		p.close()
	}
}
