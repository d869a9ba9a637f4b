package proxy

import (
	"context"
	"encoding/binary"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/log"
	"github.com/infogrid/netmesh/metrics"
	"github.com/infogrid/netmesh/netmesh"
	"github.com/infogrid/netmesh/scheduler"
	"github.com/infogrid/netmesh/xpriso"
)

type request struct {
	id       int64
	data     []byte
	attempts int
	first    time.Time
	state    State
	retry    *scheduler.Task
}

// retiredSessions bounds how many earlier sessions of a remote are remembered
// to ignore their late requests.
const retiredSessions = 8

// inbound is the receiving state of a proxy. It outlives a lost proxy so that
// the replacement keeps counting requests of the same remote session.
type inbound struct {
	session     uint64
	retired     []uint64
	lastApplied int64
}

// Proxy is the session with one remote MeshBase. Outgoing requests are
// numbered and retried until acknowledged; incoming requests are applied in
// the order of their ids.
type Proxy struct {
	m       *Manager
	remote  types.NetMeshBaseIdentifier
	logger  *zap.Logger
	session uint64

	mu          sync.Mutex
	closed      bool
	lastRequest int64
	requests    map[int64]*request
	gap         *scheduler.Task

	// applyMu serializes incoming requests. It is taken before mu.
	applyMu sync.Mutex
	in      inbound
	buffer  map[int64]*xpriso.Message
}

func newProxy(m *Manager, remote types.NetMeshBaseIdentifier, in inbound) *Proxy {
	return &Proxy{
		m:        m,
		remote:   remote,
		logger:   m.logger.With(zap.Stringer("remote", remote)),
		session:  newSession(),
		requests: map[int64]*request{},
		in:       in,
		buffer:   map[int64]*xpriso.Message{},
	}
}

func newSession() uint64 {
	id := uuid.New()
	if s := binary.LittleEndian.Uint64(id[:8]); s != 0 {
		return s
	}
	return 1
}

// Remote MeshBase of this proxy.
func (p *Proxy) Remote() types.NetMeshBaseIdentifier { return p.remote }

// Outstanding returns the ids of requests waiting for acknowledgement.
func (p *Proxy) Outstanding() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int64, 0, len(p.requests))
	for id := range p.requests {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// enqueue numbers msg and sends it. It is called while the MeshBase is locked
// and must not block.
func (p *Proxy) enqueue(msg *xpriso.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Debug("dropping message for closed proxy", zap.Object("message", msg))
		return
	}
	if msg.Operations() > 0 {
		p.lastRequest++
		msg.RequestID = p.lastRequest
		msg.Session = p.session
	}
	data, err := xpriso.Encode(msg)
	if err != nil {
		p.logger.Error("failed to encode message", zap.Object("message", msg), zap.Error(err))
		return
	}
	if msg.RequestID > 0 {
		req := &request{
			id:       msg.RequestID,
			data:     data,
			attempts: 1,
			first:    p.m.sched.Clock().Now(),
			state:    StateSent,
		}
		p.requests[req.id] = req
		p.scheduleRetry(req)
		outstanding.Inc()
		sentRequests.Inc()
	}
	p.send(data)
}

func (p *Proxy) scheduleRetry(req *request) {
	task, err := p.m.sched.AfterFunc(p.m.cfg.retryInterval(req.attempts), func(ctx context.Context) {
		p.retry(ctx, req.id)
	})
	if err != nil {
		p.logger.Debug("retry not scheduled", zap.Int64("request", req.id), zap.Error(err))
		return
	}
	req.retry = task
}

func (p *Proxy) retry(ctx context.Context, id int64) {
	p.mu.Lock()
	req, ok := p.requests[id]
	if !ok || p.closed {
		p.mu.Unlock()
		return
	}
	if req.attempts > p.m.cfg.MaxRetries {
		req.state = StateFailed
		delete(p.requests, id)
		outstanding.Dec()
		p.mu.Unlock()
		p.m.lose(ctx, p, &CommunicationError{Remote: p.remote, RequestID: id, State: StateFailed})
		return
	}
	req.state = StateTimedOut
	req.attempts++
	p.scheduleRetry(req)
	data, attempt := req.data, req.attempts
	p.mu.Unlock()

	p.logger.Debug("retrying request", zap.Int64("request", id), zap.Int("attempt", attempt))
	sentRetries.Inc()
	p.send(data)
}

func (p *Proxy) send(data []byte) {
	err := p.m.sched.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, p.m.cfg.Timeout)
		defer cancel()
		if err := p.m.transport.Send(ctx, p.remote, data); err != nil {
			p.logger.Debug("send failed", zap.Error(err))
		}
	})
	if err != nil {
		p.logger.Debug("send dropped", zap.Error(err))
	}
}

func (p *Proxy) ack(requestID int64, session uint64) {
	msg := &xpriso.Message{
		Sender:          p.m.mb.Identifier(),
		Receiver:        p.remote,
		ResponseID:      requestID,
		ResponseSession: session,
	}
	data, err := xpriso.Encode(msg)
	if err != nil {
		p.logger.Error("failed to encode ack", zap.Error(err))
		return
	}
	sentAcks.Inc()
	p.send(data)
}

func (p *Proxy) acknowledged(id int64) {
	p.mu.Lock()
	req, ok := p.requests[id]
	if ok {
		req.state = StateAcknowledged
		delete(p.requests, id)
		if req.retry != nil {
			req.retry.Cancel()
		}
	}
	p.mu.Unlock()
	if ok {
		outstanding.Dec()
		metrics.ReportRoundTrip(p.m.transport.Name(), p.m.sched.Clock().Since(req.first))
	}
}

// close stops retries and makes the proxy drop further messages.
func (p *Proxy) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, req := range p.requests {
		if req.retry != nil {
			req.retry.Cancel()
		}
		delete(p.requests, id)
		outstanding.Dec()
	}
	if p.gap != nil {
		p.gap.Cancel()
		p.gap = nil
	}
}

func (p *Proxy) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Proxy) receive(ctx context.Context, msg *xpriso.Message) error {
	if msg.ResponseID > 0 && msg.ResponseSession == p.session {
		p.acknowledged(msg.ResponseID)
	}
	if msg.RequestID == 0 {
		receivedAck.Inc()
		return nil
	}

	p.applyMu.Lock()
	defer p.applyMu.Unlock()
	if p.isClosed() {
		// lost while the message waited; the sender retries to the new proxy
		receivedDropped.Inc()
		return fmt.Errorf("%w: proxy to %s", ErrClosed, p.remote)
	}
	if !p.adopt(msg.Session) {
		receivedDropped.Inc()
		p.logger.Debug("ignoring request of retired session",
			zap.Int64("request", msg.RequestID),
			zap.Uint64("session", msg.Session),
		)
		return nil
	}
	switch {
	case msg.RequestID <= p.in.lastApplied:
		// the ack got lost, the sender retried
		receivedDuplicate.Inc()
		p.ack(msg.RequestID, msg.Session)
		return nil
	case msg.RequestID > p.in.lastApplied+1:
		if _, ok := p.buffer[msg.RequestID]; ok {
			receivedDuplicate.Inc()
			return nil
		}
		if len(p.buffer) >= p.m.cfg.ReorderLimit {
			receivedDropped.Inc()
			p.logger.Debug("reorder buffer full", zap.Int64("request", msg.RequestID))
			return nil
		}
		receivedBuffered.Inc()
		p.buffer[msg.RequestID] = msg
		p.watchGap()
		return nil
	}
	if err := p.apply(ctx, msg); err != nil {
		return err
	}
	p.drain(ctx)
	return nil
}

// adopt switches to the request numbering of a new session of the remote.
// It returns false for sessions the remote already left. Must hold applyMu.
func (p *Proxy) adopt(session uint64) bool {
	if session == p.in.session {
		return true
	}
	if slices.Contains(p.in.retired, session) {
		return false
	}
	if p.in.lastApplied > 0 || len(p.buffer) > 0 {
		p.logger.Info("remote started a new session",
			zap.Int64("last applied", p.in.lastApplied),
			zap.Int("dropped buffered", len(p.buffer)),
		)
	}
	if len(p.in.retired) == retiredSessions {
		p.in.retired = p.in.retired[1:]
	}
	p.in.retired = append(p.in.retired, p.in.session)
	p.in.session = session
	p.in.lastApplied = 0
	clear(p.buffer)
	p.mu.Lock()
	if p.gap != nil {
		p.gap.Cancel()
		p.gap = nil
	}
	p.mu.Unlock()
	return true
}

func (p *Proxy) watchGap() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gap != nil || p.closed {
		return
	}
	task, err := p.m.sched.AfterFunc(p.m.cfg.GapTimeout, p.gapExpired)
	if err == nil {
		p.gap = task
	}
}

// drain applies buffered messages that are next in order. Must hold applyMu.
func (p *Proxy) drain(ctx context.Context) {
	for {
		msg, ok := p.buffer[p.in.lastApplied+1]
		if !ok {
			break
		}
		delete(p.buffer, msg.RequestID)
		if err := p.apply(ctx, msg); err != nil {
			// dropped; the sender retries it
			break
		}
	}
	if len(p.buffer) == 0 {
		p.mu.Lock()
		if p.gap != nil {
			p.gap.Cancel()
			p.gap = nil
		}
		p.mu.Unlock()
	}
}

// gapExpired gives up on missing messages. Buffered messages are applied and
// everything shared with the remote is resynchronized.
func (p *Proxy) gapExpired(ctx context.Context) {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()
	p.mu.Lock()
	p.gap = nil
	closed := p.closed
	p.mu.Unlock()
	if closed || len(p.buffer) == 0 {
		return
	}
	next := slices.Min(slices.Collect(maps.Keys(p.buffer)))
	p.logger.Warn("missing messages, resynchronizing",
		zap.Int64("from", p.in.lastApplied+1),
		zap.Int64("to", next-1),
	)
	p.in.lastApplied = next - 1
	p.drain(ctx)
	if err := p.m.resynchronizeAll(ctx, p.remote); err != nil {
		p.logger.Warn("failed to request resynchronization", zap.Error(err))
	}
}

type responseKey struct{}

// response lets the Replicator piggyback the ack on a reply.
type response struct {
	to      types.NetMeshBaseIdentifier
	id      int64
	session uint64
	sent    bool
}

// apply runs msg in one transaction. Must hold applyMu.
func (p *Proxy) apply(ctx context.Context, msg *xpriso.Message) error {
	resp := &response{to: p.remote, id: msg.RequestID, session: msg.Session}
	ctx = context.WithValue(netmesh.WithSu(ctx), responseKey{}, resp)
	err := p.m.mb.Update(ctx, func(tx *netmesh.Tx) error {
		return p.applyTo(ctx, tx, msg)
	})
	if err != nil {
		receivedFailed.Inc()
		p.logger.Warn("failed to apply message",
			log.ZContext(ctx),
			zap.Object("message", msg),
			zap.Error(err),
		)
		return fmt.Errorf("apply request %d from %s: %w", msg.RequestID, p.remote, err)
	}
	p.in.lastApplied = msg.RequestID
	receivedApplied.Inc()
	if !resp.sent {
		p.ack(msg.RequestID, msg.Session)
	}
	return nil
}
