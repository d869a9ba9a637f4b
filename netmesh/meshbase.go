// Package netmesh keeps the local replica set of a MeshBase and enforces the
// lock and home replica rules for local and remote changes.
package netmesh

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/infogrid/netmesh/codec"
	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/store"
	"github.com/infogrid/netmesh/xpriso"
)

// EncodingID tags values written to the Store.
const EncodingID = "scale/1"

// Outbox collects the messages a transaction produced, by receiver.
type Outbox map[types.NetMeshBaseIdentifier]*xpriso.Message

// Replicator sends what transactions produced. Replicate is called after the
// transaction was persisted and while the MeshBase lock is still held, so that
// a state change and the messages announcing it cannot be observed apart. It
// must not block on the network and must not call back into the MeshBase.
type Replicator interface {
	Replicate(ctx context.Context, out Outbox)
}

// Config for a MeshBase.
type Config struct {
	CacheSize int `mapstructure:"cache-size"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{CacheSize: 10_000}
}

// Opt for configuring a MeshBase.
type Opt func(*MeshBase)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(mb *MeshBase) {
		mb.logger = logger
	}
}

// WithClock overwrites the clock used for timestamps.
func WithClock(clock clockwork.Clock) Opt {
	return func(mb *MeshBase) {
		mb.clock = clock
	}
}

// WithConfig sets the configuration.
func WithConfig(cfg Config) Opt {
	return func(mb *MeshBase) {
		mb.cfg = cfg
	}
}

// WithAccessManager installs an access check for local operations.
func WithAccessManager(access AccessManager) Opt {
	return func(mb *MeshBase) {
		mb.access = access
	}
}

// WithMeshBaseIDFactory sets the factory used to re-parse identifiers of
// persisted proxies.
func WithMeshBaseIDFactory(f *types.MeshBaseIDFactory) Opt {
	return func(mb *MeshBase) {
		mb.bases = f
	}
}

// MeshBase is the local replica set. All mutations run inside Update, one
// at a time; reads run concurrently against committed state.
type MeshBase struct {
	logger *zap.Logger
	clock  clockwork.Clock
	cfg    Config
	access AccessManager

	id    types.NetMeshBaseIdentifier
	ids   *types.ObjectIDFactory
	bases *types.MeshBaseIDFactory
	store store.Store
	cache *lru.Cache[types.NetMeshObjectIdentifier, *replica]

	mu         sync.RWMutex
	closed     bool
	changed    chan struct{}
	replicator Replicator
	listeners  []Listener
	// requester a lock or home push has to be passed on to
	lockForwards map[types.NetMeshObjectIdentifier]types.NetMeshBaseIdentifier
	homeForwards map[types.NetMeshObjectIdentifier]types.NetMeshBaseIdentifier
}

// New opens the MeshBase id on top of st and creates its home object if the
// store does not have it yet.
func New(ctx context.Context, id types.NetMeshBaseIdentifier, st store.Store, opts ...Opt) (*MeshBase, error) {
	mb := &MeshBase{
		logger:       zap.NewNop(),
		clock:        clockwork.NewRealClock(),
		cfg:          DefaultConfig(),
		bases:        types.DefaultMeshBaseIDFactory(),
		id:           id,
		store:        st,
		changed:      make(chan struct{}),
		lockForwards: map[types.NetMeshObjectIdentifier]types.NetMeshBaseIdentifier{},
		homeForwards: map[types.NetMeshObjectIdentifier]types.NetMeshBaseIdentifier{},
	}
	for _, opt := range opts {
		opt(mb)
	}
	if id.IsEmpty() {
		return nil, fmt.Errorf("%w: empty meshbase identifier", types.ErrInvalidIdentifier)
	}
	mb.ids = types.NewObjectIDFactory(id, mb.bases)
	cache, err := lru.New[types.NetMeshObjectIdentifier, *replica](max(mb.cfg.CacheSize, 1))
	if err != nil {
		return nil, fmt.Errorf("create replica cache: %w", err)
	}
	mb.cache = cache

	home := mb.ids.HomeObject()
	if _, err := mb.Snapshot(ctx, home); errors.Is(err, ErrNotFound) {
		err = mb.Update(WithSu(ctx), func(tx *Tx) error {
			return tx.CreateMeshObjectWithID(home)
		})
		if err != nil {
			return nil, fmt.Errorf("create home object: %w", err)
		}
	} else if err != nil {
		return nil, err
	}
	return mb, nil
}

// Identifier of this MeshBase.
func (mb *MeshBase) Identifier() types.NetMeshBaseIdentifier { return mb.id }

// IDs returns the factory for identifiers of objects of this MeshBase.
func (mb *MeshBase) IDs() *types.ObjectIDFactory { return mb.ids }

// Now returns the current time in milliseconds, as used for replica timestamps.
func (mb *MeshBase) Now() int64 { return mb.clock.Now().UnixMilli() }

// SetReplicator registers the component that sends outgoing messages.
func (mb *MeshBase) SetReplicator(r Replicator) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.replicator = r
}

// AddListener registers l for all future commits.
func (mb *MeshBase) AddListener(l Listener) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.listeners = append(mb.listeners, l)
}

// Close rejects further transactions and wakes up waiters.
func (mb *MeshBase) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.changed)
}

// Update runs fn as the only writer of the MeshBase. If fn fails nothing it
// did is kept: no replica changes, no messages, no change events.
// fn must not call other MeshBase methods except through the Tx.
func (mb *MeshBase) Update(ctx context.Context, fn func(*Tx) error) error {
	start := time.Now()
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return ErrClosed
	}
	tx := newTx(ctx, mb)
	if err := fn(tx); err != nil {
		mb.mu.Unlock()
		txCount.WithLabelValues(resultRollback).Inc()
		return err
	}
	if err := tx.commit(); err != nil {
		mb.mu.Unlock()
		txCount.WithLabelValues(resultFailed).Inc()
		return err
	}
	if len(tx.out) > 0 && mb.replicator != nil {
		mb.replicator.Replicate(ctx, tx.out)
	}
	close(mb.changed)
	mb.changed = make(chan struct{})
	changes := tx.changes
	listeners := slices.Clone(mb.listeners)
	mb.mu.Unlock()

	txCount.WithLabelValues(resultCommit).Inc()
	txDuration.Observe(time.Since(start).Seconds())
	for i := range changes {
		changeCount.WithLabelValues(changes[i].Kind.String()).Inc()
	}
	if len(changes) > 0 {
		for _, l := range listeners {
			l(ctx, changes)
		}
	}
	return nil
}

// Get returns the replica and records that it was read.
func (mb *MeshBase) Get(ctx context.Context, id types.NetMeshObjectIdentifier) (*MeshObject, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	r, err := mb.load(ctx, id)
	if err != nil {
		return nil, err
	}
	c := r.Clone()
	c.TimeRead = mb.Now()
	if err := mb.store.Put(ctx, encode(c)); err != nil {
		return nil, fmt.Errorf("record read of %s: %w", id, err)
	}
	mb.cache.Add(id, c)
	return &MeshObject{r: c}, nil
}

// Snapshot returns the replica without touching its read time.
func (mb *MeshBase) Snapshot(ctx context.Context, id types.NetMeshObjectIdentifier) (*MeshObject, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	r, err := mb.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &MeshObject{r: r}, nil
}

// WaitUntil blocks until cond holds for the committed state, or ctx is done.
// cond is evaluated after every commit.
func (mb *MeshBase) WaitUntil(ctx context.Context, cond func(lookup func(types.NetMeshObjectIdentifier) (*MeshObject, bool)) bool) error {
	for {
		mb.mu.RLock()
		closed := mb.closed
		ok := cond(func(id types.NetMeshObjectIdentifier) (*MeshObject, bool) {
			r, err := mb.load(ctx, id)
			if err != nil {
				return nil, false
			}
			return &MeshObject{r: r}, true
		})
		changed := mb.changed
		mb.mu.RUnlock()
		if ok {
			return nil
		}
		if closed {
			return ErrClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Scan visits at most limit stored replicas with keys after the given one, in
// key order, and returns the key to continue from. Replicas that cannot be
// decoded are passed to fn with a nil object and an error wrapping ErrDecode.
// Scan does not hold the MeshBase lock; fn may run transactions.
func (mb *MeshBase) Scan(
	ctx context.Context,
	after string,
	limit int,
	fn func(key string, obj *MeshObject, err error) error,
) (string, error) {
	next := after
	err := mb.store.Iterate(ctx, after, limit, func(v store.Value) error {
		next = v.Key
		r, err := mb.decode(v)
		if err != nil {
			return fn(v.Key, nil, err)
		}
		return fn(v.Key, &MeshObject{r: r}, nil)
	})
	return next, err
}

// ReplicasWithProxy returns the identifiers of all replicas that list base
// among their proxies.
func (mb *MeshBase) ReplicasWithProxy(ctx context.Context, base types.NetMeshBaseIdentifier) ([]types.NetMeshObjectIdentifier, error) {
	var (
		rst   []types.NetMeshObjectIdentifier
		after string
	)
	for {
		n := 0
		next, err := mb.Scan(ctx, after, scanBatch, func(_ string, obj *MeshObject, err error) error {
			n++
			if err == nil && slices.Contains(obj.r.Proxies, base) {
				rst = append(rst, obj.Identifier())
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if n < scanBatch {
			return rst, nil
		}
		after = next
	}
}

// RestoreStats summarizes a Restore.
type RestoreStats struct {
	Loaded  int
	Skipped int
}

// Restore reads every persisted replica, warming the cache. Replicas that
// cannot be decoded are logged and skipped.
func (mb *MeshBase) Restore(ctx context.Context) (RestoreStats, error) {
	var (
		stats RestoreStats
		after string
	)
	for {
		n := 0
		next, err := mb.Scan(ctx, after, scanBatch, func(key string, obj *MeshObject, err error) error {
			n++
			if err != nil {
				stats.Skipped++
				decodeFailures.Inc()
				mb.logger.Warn("skipping corrupt replica", zap.String("key", key), zap.Error(err))
				return nil
			}
			stats.Loaded++
			mb.cache.Add(obj.Identifier(), obj.r)
			return nil
		})
		if err != nil {
			return stats, err
		}
		if n < scanBatch {
			mb.logger.Info("restored replicas",
				zap.Int("loaded", stats.Loaded),
				zap.Int("skipped", stats.Skipped),
			)
			return stats, nil
		}
		after = next
	}
}

const scanBatch = 256

func (mb *MeshBase) load(ctx context.Context, id types.NetMeshObjectIdentifier) (*replica, error) {
	if r, ok := mb.cache.Get(id); ok {
		return r, nil
	}
	v, err := mb.store.Get(ctx, id.String())
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	r, err := mb.decode(v)
	if err != nil {
		decodeFailures.Inc()
		return nil, err
	}
	mb.cache.Add(id, r)
	return r, nil
}

func (mb *MeshBase) decode(v store.Value) (*replica, error) {
	if v.EncodingID != EncodingID {
		return nil, fmt.Errorf("%w: %s: unknown encoding %q", ErrDecode, v.Key, v.EncodingID)
	}
	var r replica
	if err := codec.Decode(v.Data, &r); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, v.Key, err)
	}
	for i, p := range r.Proxies {
		// schemes supported when the replica was written may be gone by now
		guessed, err := mb.bases.GuessFromExternalForm(p.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %s: proxy %d: %w", ErrDecode, v.Key, i, err)
		}
		r.Proxies[i] = guessed
	}
	return &r, nil
}

func encode(r *replica) store.Value {
	return store.Value{
		Key:         r.Identifier.String(),
		EncodingID:  EncodingID,
		TimeCreated: r.TimeCreated,
		TimeUpdated: r.TimeUpdated,
		TimeRead:    r.TimeRead,
		TimeExpires: r.TimeExpires,
		Data:        codec.MustEncode(r),
	}
}
