package proxy

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/log/logtest"
	"github.com/infogrid/netmesh/netmesh"
	"github.com/infogrid/netmesh/scheduler"
	"github.com/infogrid/netmesh/store"
	"github.com/infogrid/netmesh/xpriso"
)

var (
	baseA = types.MustFromExternalForm("mem:a")
	baseB = types.MustFromExternalForm("mem:b")
	baseC = types.MustFromExternalForm("mem:c")
)

type testManager struct {
	*Manager
	mb    *netmesh.MeshBase
	clock clockwork.FakeClock
	sent  chan *xpriso.Message
}

func newTestManager(tb testing.TB, cfg Config) *testManager {
	tb.Helper()
	logger := logtest.New(tb)
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
	sched := scheduler.New(scheduler.WithLogger(logger), scheduler.WithClock(clock))
	tb.Cleanup(sched.Close)
	mb, err := netmesh.New(context.Background(), baseA, store.NewMemory(),
		netmesh.WithLogger(logger),
		netmesh.WithClock(clock),
	)
	require.NoError(tb, err)
	tb.Cleanup(mb.Close)

	tm := &testManager{mb: mb, clock: clock, sent: make(chan *xpriso.Message, 100)}
	transport := NewMockTransport(gomock.NewController(tb))
	transport.EXPECT().Name().Return("mock").AnyTimes()
	transport.EXPECT().SetHandler(gomock.Any())
	transport.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, to types.NetMeshBaseIdentifier, data []byte) error {
			msg, err := xpriso.Decode(data)
			require.NoError(tb, err)
			require.Equal(tb, to, msg.Receiver)
			tm.sent <- msg
			return nil
		}).AnyTimes()
	tm.Manager = New(mb, transport, sched, WithLogger(logger), WithConfig(cfg))
	tb.Cleanup(tm.Close)
	return tm
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryInterval = time.Second
	cfg.MaxRetryInterval = 4 * time.Second
	cfg.MaxRetries = 2
	cfg.GapTimeout = 10 * time.Second
	cfg.LockWaitTimeout = time.Second
	return cfg
}

func (tm *testManager) handle(tb testing.TB, msg *xpriso.Message) error {
	tb.Helper()
	data, err := xpriso.Encode(msg)
	require.NoError(tb, err)
	return tm.Handle(context.Background(), data)
}

func (tm *testManager) next(tb testing.TB) *xpriso.Message {
	tb.Helper()
	select {
	case msg := <-tm.sent:
		return msg
	case <-time.After(5 * time.Second):
		require.FailNow(tb, "no message sent")
		return nil
	}
}

func (tm *testManager) quiet(tb testing.TB) {
	tb.Helper()
	select {
	case msg := <-tm.sent:
		require.FailNow(tb, "unexpected message", "%+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func (tm *testManager) create(tb testing.TB) types.NetMeshObjectIdentifier {
	tb.Helper()
	var id types.NetMeshObjectIdentifier
	require.NoError(tb, tm.mb.Update(context.Background(), func(tx *netmesh.Tx) error {
		var err error
		id, err = tx.CreateMeshObject("Person")
		return err
	}))
	return id
}

// replicaFrom makes A hold a replica of an object owned by from, with lock
// and home at from.
func (tm *testManager) replicaFrom(tb testing.TB, from types.NetMeshBaseIdentifier, requestID int64) types.NetMeshObjectIdentifier {
	tb.Helper()
	id := types.NewNetMeshObjectIdentifier(from, "obj")
	require.NoError(tb, tm.handle(tb, &xpriso.Message{
		Sender:    from,
		Receiver:  baseA,
		RequestID: requestID,
		ConveyedMeshObjects: []types.ExternalizedNetMeshObject{{
			Identifier:            id,
			EntityTypes:           []types.EntityTypeID{"Person"},
			TimeCreated:           10,
			TimeUpdated:           20,
			TimeExpires:           types.NeverExpires,
			ProxyTowardsHomeIndex: types.HereIndex,
			ProxyTowardsLockIndex: types.HereIndex,
		}},
	}))
	ack := tm.next(tb)
	require.Equal(tb, int64(0), ack.RequestID)
	require.Equal(tb, requestID, ack.ResponseID)
	return id
}

func TestFirstTimeRequestIsConveyed(t *testing.T) {
	tm := newTestManager(t, testConfig())
	id := tm.create(t)

	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender:                    baseB,
		Receiver:                  baseA,
		RequestID:                 1,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{id},
	}))
	msg := tm.next(t)
	require.Equal(t, baseA, msg.Sender)
	require.Equal(t, int64(1), msg.RequestID)
	require.Equal(t, int64(1), msg.ResponseID)
	require.Len(t, msg.ConveyedMeshObjects, 1)
	require.Equal(t, id, msg.ConveyedMeshObjects[0].Identifier)

	p, ok := tm.Proxy(baseB)
	require.True(t, ok)
	require.Equal(t, []int64{1}, p.Outstanding())

	obj, err := tm.mb.Snapshot(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []types.NetMeshBaseIdentifier{baseB}, obj.Proxies())
}

func TestAckStopsRetries(t *testing.T) {
	tm := newTestManager(t, testConfig())
	id := tm.create(t)
	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 1,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{id},
	}))
	sent := tm.next(t)
	require.NotZero(t, sent.Session)

	// an ack for another session of A is not ours
	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, ResponseID: 1, ResponseSession: sent.Session + 1,
	}))
	p, ok := tm.Proxy(baseB)
	require.True(t, ok)
	require.Equal(t, []int64{1}, p.Outstanding())

	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, ResponseID: 1, ResponseSession: sent.Session,
	}))
	require.Empty(t, p.Outstanding())

	tm.clock.Advance(time.Hour)
	tm.quiet(t)
}

func TestRetriesUntilLost(t *testing.T) {
	tm := newTestManager(t, testConfig())
	id := tm.create(t)
	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 1,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{id},
	}))
	first := tm.next(t)

	for _, wait := range []time.Duration{time.Second, 2 * time.Second} {
		tm.clock.Advance(wait)
		retry := tm.next(t)
		require.True(t, first.Equal(retry))
		require.Equal(t, first.RequestID, retry.RequestID)
	}
	tm.clock.Advance(4 * time.Second)
	require.Eventually(t, func() bool {
		_, ok := tm.Proxy(baseB)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		obj, err := tm.mb.Snapshot(context.Background(), id)
		require.NoError(t, err)
		return !obj.IsReplicated()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDuplicateIsAcknowledgedAgain(t *testing.T) {
	tm := newTestManager(t, testConfig())
	id := tm.create(t)
	req := &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 1,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{id},
	}
	require.NoError(t, tm.handle(t, req))
	require.Len(t, tm.next(t).ConveyedMeshObjects, 1)

	require.NoError(t, tm.handle(t, req))
	ack := tm.next(t)
	require.Equal(t, int64(0), ack.RequestID)
	require.Equal(t, int64(1), ack.ResponseID)
	require.True(t, ack.IsEmpty())
}

func TestNewRemoteSessionRestartsCount(t *testing.T) {
	tm := newTestManager(t, testConfig())
	first, second, third := tm.create(t), tm.create(t), tm.create(t)
	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 1, Session: 10,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{first},
	}))
	tm.next(t)

	// B lost its proxy and numbers from 1 again
	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 1, Session: 11,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{second},
	}))
	reply := tm.next(t)
	require.Equal(t, int64(1), reply.ResponseID)
	require.Equal(t, uint64(11), reply.ResponseSession)
	require.Len(t, reply.ConveyedMeshObjects, 1)
	require.Equal(t, second, reply.ConveyedMeshObjects[0].Identifier)

	// a late request of the old session is ignored
	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 2, Session: 10,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{third},
	}))
	tm.quiet(t)
	obj, err := tm.mb.Snapshot(context.Background(), third)
	require.NoError(t, err)
	require.False(t, obj.IsReplicated())
}

func TestLostProxyKeepsIncomingCount(t *testing.T) {
	tm := newTestManager(t, testConfig())
	first, second := tm.create(t), tm.create(t)
	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 1, Session: 10,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{first},
	}))
	lostSession := tm.next(t).Session

	for _, wait := range []time.Duration{time.Second, 2 * time.Second} {
		tm.clock.Advance(wait)
		tm.next(t)
	}
	tm.clock.Advance(4 * time.Second)
	require.Eventually(t, func() bool {
		_, ok := tm.Proxy(baseB)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 2, Session: 10,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{second},
	}))
	reply := tm.next(t)
	require.Equal(t, int64(2), reply.ResponseID)
	require.Equal(t, int64(1), reply.RequestID)
	require.NotEqual(t, lostSession, reply.Session)
	require.Equal(t, second, reply.ConveyedMeshObjects[0].Identifier)
}

func TestOutOfOrderIsBuffered(t *testing.T) {
	tm := newTestManager(t, testConfig())
	first, second := tm.create(t), tm.create(t)

	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 2,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{second},
	}))
	tm.quiet(t)

	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 1,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{first},
	}))
	msgs := []*xpriso.Message{tm.next(t), tm.next(t)}
	slices.SortFunc(msgs, func(a, b *xpriso.Message) int { return int(a.ResponseID - b.ResponseID) })
	require.Equal(t, int64(1), msgs[0].ResponseID)
	require.Equal(t, first, msgs[0].ConveyedMeshObjects[0].Identifier)
	require.Equal(t, int64(2), msgs[1].ResponseID)
	require.Equal(t, second, msgs[1].ConveyedMeshObjects[0].Identifier)
}

func TestGapTimeoutResynchronizes(t *testing.T) {
	cfg := testConfig()
	tm := newTestManager(t, cfg)
	id := tm.replicaFrom(t, baseB, 1)

	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 3,
		PropertyChanges: []xpriso.PropertyChange{{
			Identifier: id, Type: "name", Value: types.StringValue("ada"), TimeUpdated: 30,
		}},
	}))
	tm.quiet(t)

	tm.clock.Advance(cfg.GapTimeout)
	var resync *xpriso.Message
	for resync == nil {
		msg := tm.next(t)
		if len(msg.RequestedResynchronizeReplicas) > 0 {
			resync = msg
		} else {
			require.Equal(t, int64(3), msg.ResponseID)
		}
	}
	require.Equal(t, []types.NetMeshObjectIdentifier{id}, resync.RequestedResynchronizeReplicas)

	obj, err := tm.mb.Snapshot(context.Background(), id)
	require.NoError(t, err)
	v, ok := obj.Property("name")
	require.True(t, ok)
	require.Equal(t, types.StringValue("ada"), v)
}

func TestConflictRequestsResynchronize(t *testing.T) {
	tm := newTestManager(t, testConfig())
	id := tm.replicaFrom(t, baseB, 1)

	require.NoError(t, tm.handle(t, &xpriso.Message{
		Sender: baseC, Receiver: baseA, RequestID: 1,
		PropertyChanges: []xpriso.PropertyChange{{
			Identifier: id, Type: "name", Value: types.StringValue("mallory"), TimeUpdated: 30,
		}},
	}))
	msgs := map[types.NetMeshBaseIdentifier]*xpriso.Message{}
	for range 2 {
		msg := tm.next(t)
		msgs[msg.Receiver] = msg
	}
	require.Equal(t, int64(1), msgs[baseC].ResponseID)
	require.Equal(t, []types.NetMeshObjectIdentifier{id}, msgs[baseB].RequestedResynchronizeReplicas)

	obj, err := tm.mb.Snapshot(context.Background(), id)
	require.NoError(t, err)
	_, ok := obj.Property("name")
	require.False(t, ok)
}

func TestRejectsInvalidMessages(t *testing.T) {
	tm := newTestManager(t, testConfig())
	require.Error(t, tm.Handle(context.Background(), []byte{0xff, 0xff}))

	err := tm.handle(t, &xpriso.Message{Sender: baseB, Receiver: baseC})
	require.ErrorIs(t, err, ErrWrongReceiver)

	err = tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA,
		RequestedLockObjects: []types.NetMeshObjectIdentifier{types.NewNetMeshObjectIdentifier(baseB, "x")},
	})
	require.ErrorIs(t, err, xpriso.ErrInvalidMessage)
	tm.quiet(t)
}

func TestRemoteCease(t *testing.T) {
	tm := newTestManager(t, testConfig())
	id := tm.replicaFrom(t, baseB, 1)

	require.NoError(t, tm.handle(t, &xpriso.Message{Sender: baseB, Receiver: baseA, CeaseCommunications: true}))
	_, ok := tm.Proxy(baseB)
	require.False(t, ok)
	obj, err := tm.mb.Snapshot(context.Background(), id)
	require.NoError(t, err)
	require.False(t, obj.IsReplicated())
	require.True(t, obj.LockRouteLost())

	err = tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 2,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{id},
	})
	require.ErrorIs(t, err, ErrCeased)
	tm.quiet(t)
}

func TestObtainTimesOut(t *testing.T) {
	tm := newTestManager(t, testConfig())
	id := types.NewNetMeshObjectIdentifier(baseB, "missing")

	done := make(chan error, 1)
	go func() { done <- tm.Obtain(context.Background(), baseB, id) }()
	msg := tm.next(t)
	require.Equal(t, []types.NetMeshObjectIdentifier{id}, msg.RequestedFirstTimeObjects)
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrTimeout)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "obtain did not time out")
	}
}

func TestObtainLockOfLocalReplica(t *testing.T) {
	tm := newTestManager(t, testConfig())
	id := tm.create(t)
	require.NoError(t, tm.ObtainLocks(context.Background(), id))
	require.NoError(t, tm.ObtainHomeReplicas(context.Background(), id))
	tm.quiet(t)
}

func TestClosedManagerDropsMessages(t *testing.T) {
	tm := newTestManager(t, testConfig())
	id := tm.create(t)
	tm.Close()
	err := tm.handle(t, &xpriso.Message{
		Sender: baseB, Receiver: baseA, RequestID: 1,
		RequestedFirstTimeObjects: []types.NetMeshObjectIdentifier{id},
	})
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, tm.Cease(context.Background(), baseB), ErrClosed)
}

func TestRetryInterval(t *testing.T) {
	cfg := Config{RetryInterval: time.Second, MaxRetryInterval: 5 * time.Second}
	for attempt, want := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 5 * time.Second,
		9: 5 * time.Second,
	} {
		require.Equal(t, want, cfg.retryInterval(attempt), "attempt %d", attempt)
	}
}

func TestCommunicationError(t *testing.T) {
	err := error(&CommunicationError{Remote: baseB, RequestID: 3, State: StateFailed})
	require.ErrorIs(t, err, ErrLost)
	require.Contains(t, err.Error(), "mem:b")

	err = &CommunicationError{Remote: baseB, RequestID: 3, State: StateTimedOut}
	require.False(t, errors.Is(err, ErrLost))
}
