package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/log/logtest"
	"github.com/infogrid/netmesh/netmesh"
	"github.com/infogrid/netmesh/scheduler"
	"github.com/infogrid/netmesh/store"
)

var (
	baseA = types.MustFromExternalForm("mem:a")
	baseB = types.MustFromExternalForm("mem:b")
)

const start = 1_000_000

func newMeshBase(tb testing.TB) (*netmesh.MeshBase, clockwork.FakeClock) {
	tb.Helper()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(start))
	mb, err := netmesh.New(context.Background(), baseA, store.NewMemory(),
		netmesh.WithLogger(logtest.New(tb)),
		netmesh.WithClock(clock),
	)
	require.NoError(tb, err)
	tb.Cleanup(mb.Close)
	return mb, clock
}

func create(tb testing.TB, mb *netmesh.MeshBase, expires int64) types.NetMeshObjectIdentifier {
	tb.Helper()
	var id types.NetMeshObjectIdentifier
	require.NoError(tb, mb.Update(context.Background(), func(tx *netmesh.Tx) error {
		var err error
		if id, err = tx.CreateMeshObject(); err != nil {
			return err
		}
		return tx.SetExpires(id, expires)
	}))
	return id
}

// conveyed creates a replica of an object homed at mem:b. Expiry is not
// replicated, so it is set on the local replica.
func conveyed(tb testing.TB, mb *netmesh.MeshBase, local string, expires int64) types.NetMeshObjectIdentifier {
	tb.Helper()
	id := types.NewNetMeshObjectIdentifier(baseB, local)
	require.NoError(tb, mb.Update(netmesh.WithSu(context.Background()), func(tx *netmesh.Tx) error {
		if err := tx.ApplyConveyed(baseB, &types.ExternalizedNetMeshObject{
			Identifier:            id,
			TimeCreated:           start,
			TimeUpdated:           start,
			TimeExpires:           start - 1,
			ProxyTowardsHomeIndex: types.HereIndex,
			ProxyTowardsLockIndex: types.HereIndex,
		}); err != nil {
			return err
		}
		obj, err := tx.Get(id)
		require.NoError(tb, err)
		require.Equal(tb, types.NeverExpires, obj.TimeExpires())
		return tx.SetExpires(id, expires)
	}))
	return id
}

func exists(tb testing.TB, mb *netmesh.MeshBase, id types.NetMeshObjectIdentifier) bool {
	tb.Helper()
	_, err := mb.Snapshot(context.Background(), id)
	if err == nil {
		return true
	}
	require.ErrorIs(tb, err, netmesh.ErrNotFound)
	return false
}

func TestExpiresBoundary(t *testing.T) {
	mb, _ := newMeshBase(t)
	never := create(t, mb, types.NeverExpires)
	future := create(t, mb, start+1)
	now := create(t, mb, start)
	past := create(t, mb, start-1)

	p := Expires()
	for id, want := range map[types.NetMeshObjectIdentifier]bool{
		never:  false,
		future: false,
		now:    true,
		past:   true,
	} {
		obj, err := mb.Snapshot(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, want, p.ShouldBeDeleted(obj, start), "expires %d", obj.TimeExpires())
	}
}

func TestNotReadFor(t *testing.T) {
	mb, clock := newMeshBase(t)
	id := create(t, mb, types.NeverExpires)
	p := NotReadFor(time.Minute)

	obj, err := mb.Snapshot(context.Background(), id)
	require.NoError(t, err)
	require.False(t, p.ShouldBeDeleted(obj, mb.Now()))
	require.True(t, p.ShouldBeDeleted(obj, mb.Now()+time.Minute.Milliseconds()))

	clock.Advance(time.Minute)
	obj, err = mb.Get(context.Background(), id)
	require.NoError(t, err)
	require.False(t, p.ShouldBeDeleted(obj, mb.Now()))
}

func TestOrphaned(t *testing.T) {
	mb, _ := newMeshBase(t)
	local := create(t, mb, types.NeverExpires)
	remote := conveyed(t, mb, "x", types.NeverExpires)

	check := func(id types.NetMeshObjectIdentifier) bool {
		obj, err := mb.Snapshot(context.Background(), id)
		require.NoError(t, err)
		return Orphaned(obj, 0)
	}
	require.False(t, check(local))
	require.False(t, check(remote))

	require.NoError(t, mb.Update(netmesh.WithSu(context.Background()), func(tx *netmesh.Tx) error {
		return tx.DropProxy(baseB, remote)
	}))
	require.True(t, check(remote))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("expires", 0)
	require.NoError(t, err)
	require.Equal(t, KindExpires, p.Kind)

	p, err = ParsePolicy("expires, not-read-for,orphaned", time.Hour)
	require.NoError(t, err)
	require.Equal(t, KindPredicate, p.Kind)

	_, err = ParsePolicy("not-read-for", 0)
	require.Error(t, err)
	_, err = ParsePolicy("sometimes", 0)
	require.Error(t, err)
	_, err = ParsePolicy(" , ", 0)
	require.Error(t, err)
}

func TestSweepLot(t *testing.T) {
	mb, _ := newMeshBase(t)
	keep := create(t, mb, types.NeverExpires)
	home := create(t, mb, start)
	replica := conveyed(t, mb, "x", start)
	orphan := conveyed(t, mb, "y", start)
	require.NoError(t, mb.Update(netmesh.WithSu(context.Background()), func(tx *netmesh.Tx) error {
		return tx.DropProxy(baseB, orphan)
	}))

	var changes []netmesh.Change
	mb.AddListener(func(_ context.Context, cs []netmesh.Change) { changes = append(changes, cs...) })

	deletedBefore := testutil.ToFloat64(deletedCount)
	purgedBefore := testutil.ToFloat64(purgedCount)

	s := New(mb, Expires(), WithLogger(logtest.New(t)))
	rst, err := s.SweepLot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(deletedCount)-deletedBefore)
	require.Equal(t, 2.0, testutil.ToFloat64(purgedCount)-purgedBefore)
	require.True(t, rst.Wrapped)
	require.Equal(t, 5, rst.Visited)
	require.Equal(t, 1, rst.Deleted)
	require.Equal(t, 2, rst.Purged)
	require.Zero(t, rst.Failed)

	require.True(t, exists(t, mb, keep))
	require.True(t, exists(t, mb, mb.IDs().HomeObject()))
	require.False(t, exists(t, mb, home))
	require.False(t, exists(t, mb, replica))
	require.False(t, exists(t, mb, orphan))

	kinds := map[netmesh.ChangeKind]int{}
	for _, c := range changes {
		kinds[c.Kind]++
	}
	require.Equal(t, 1, kinds[netmesh.Deleted])
	require.Equal(t, 2, kinds[netmesh.Purged])
}

func TestSweepLotIsolatesFailures(t *testing.T) {
	mb, _ := newMeshBase(t)
	id := create(t, mb, start)
	require.NoError(t, mb.Update(netmesh.WithSu(context.Background()), func(tx *netmesh.Tx) error {
		// the lock moves to mem:b, so deleting fails
		if err := tx.FirstTimeRequested(baseB, id); err != nil {
			return err
		}
		_, err := tx.LockRequested(baseB, id, func(*netmesh.MeshObject) bool { return true })
		return err
	}))
	other := create(t, mb, start)

	s := New(mb, Expires())
	rst, err := s.SweepLot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rst.Failed)
	require.Equal(t, 1, rst.Deleted)
	require.True(t, exists(t, mb, id))
	require.False(t, exists(t, mb, other))
}

func TestSweepInLots(t *testing.T) {
	mb, _ := newMeshBase(t)
	for range 4 {
		create(t, mb, start)
	}
	s := New(mb, Expires(), WithBatchSize(2))

	total := 0
	for i := range 3 {
		rst, err := s.SweepLot(context.Background())
		require.NoError(t, err)
		require.LessOrEqual(t, rst.Visited, 2)
		require.Equal(t, i == 2, rst.Wrapped, "lot %d", i)
		total += rst.Deleted
	}
	require.Equal(t, 4, total)
}

func TestStartStop(t *testing.T) {
	mb, _ := newMeshBase(t)
	id := create(t, mb, start)

	clock := clockwork.NewFakeClock()
	sched := scheduler.New(scheduler.WithClock(clock))
	t.Cleanup(sched.Close)

	s := New(mb, Expires(), WithLogger(logtest.New(t)))
	require.NoError(t, s.Start(sched, time.Minute))
	require.ErrorIs(t, s.Start(sched, time.Minute), ErrRunning)

	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return !exists(t, mb, id) }, 5*time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()
}
