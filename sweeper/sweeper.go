// Package sweeper removes replicas that are no longer needed. It visits the
// replicas of a MeshBase in bounded lots.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/netmesh"
	"github.com/infogrid/netmesh/scheduler"
)

// ErrRunning is returned by Start if the sweeper runs already.
var ErrRunning = errors.New("sweeper already running")

// Config of the sweeper.
type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// Interval between two lots.
	Interval time.Duration `mapstructure:"interval"`
	// BatchSize is the number of replicas visited per lot.
	BatchSize int `mapstructure:"batch-size"`
	// Policy is a comma separated list of expires, not-read-for and orphaned.
	Policy    string        `mapstructure:"policy"`
	MaxUnread time.Duration `mapstructure:"max-unread"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Interval:  time.Minute,
		BatchSize: 500,
		Policy:    "expires,orphaned",
		MaxUnread: 30 * 24 * time.Hour,
	}
}

type Opt func(*Sweeper)

func WithLogger(logger *zap.Logger) Opt {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(s *Sweeper) {
		s.clock = clock
	}
}

func WithBatchSize(n int) Opt {
	return func(s *Sweeper) {
		s.batchSize = n
	}
}

// Result of one lot.
type Result struct {
	Visited int
	Deleted int
	Purged  int
	Failed  int
	// Wrapped is set when the lot reached the last replica; the next lot
	// starts from the first one again.
	Wrapped bool
}

// Sweeper deletes home replicas and purges other replicas its policy selects.
type Sweeper struct {
	logger    *zap.Logger
	clock     clockwork.Clock
	mb        *netmesh.MeshBase
	policy    Policy
	batchSize int

	cursor string
	task   *scheduler.Task
}

func New(mb *netmesh.MeshBase, policy Policy, opts ...Opt) *Sweeper {
	s := &Sweeper{
		logger:    zap.NewNop(),
		clock:     clockwork.NewRealClock(),
		mb:        mb,
		policy:    policy,
		batchSize: DefaultConfig().BatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SweepLot visits the next lot of replicas. A replica that fails to be
// removed is logged and skipped. SweepLot must not run concurrently with
// itself; Start takes care of that.
func (s *Sweeper) SweepLot(ctx context.Context) (Result, error) {
	var (
		rst        Result
		candidates []types.NetMeshObjectIdentifier
		start      = s.clock.Now()
		now        = s.mb.Now()
	)
	next, err := s.mb.Scan(ctx, s.cursor, s.batchSize, func(key string, obj *netmesh.MeshObject, err error) error {
		rst.Visited++
		if err != nil {
			rst.Failed++
			s.logger.Warn("skipping undecodable replica", zap.String("key", key), zap.Error(err))
			return nil
		}
		if !obj.Identifier().IsHomeObject() && s.policy.ShouldBeDeleted(obj, now) {
			candidates = append(candidates, obj.Identifier())
		}
		return nil
	})
	if err != nil {
		return rst, fmt.Errorf("scan replicas: %w", err)
	}
	scanLatency.Observe(time.Since(start).Seconds())
	if rst.Visited < s.batchSize {
		rst.Wrapped = true
		s.cursor = ""
	} else {
		s.cursor = next
	}

	start = s.clock.Now()
	for _, id := range candidates {
		deleted, err := s.sweep(ctx, id, now)
		switch {
		case errors.Is(err, netmesh.ErrNotFound):
		case err != nil:
			rst.Failed++
			s.logger.Warn("failed to sweep replica", zap.Stringer("object", id), zap.Error(err))
		case deleted:
			rst.Deleted++
		default:
			rst.Purged++
		}
	}
	removeLatency.Observe(time.Since(start).Seconds())
	visited.Add(float64(rst.Visited))
	deletedCount.Add(float64(rst.Deleted))
	purgedCount.Add(float64(rst.Purged))
	failedCount.Add(float64(rst.Failed))
	return rst, nil
}

func (s *Sweeper) sweep(ctx context.Context, id types.NetMeshObjectIdentifier, now int64) (deleted bool, err error) {
	err = s.mb.Update(netmesh.WithSu(ctx), func(tx *netmesh.Tx) error {
		obj, err := tx.Get(id)
		if err != nil {
			return err
		}
		// it may have changed since the scan
		if !s.policy.ShouldBeDeleted(obj, now) {
			return nil
		}
		if obj.IsHomeReplica() {
			deleted = true
			return tx.Delete(id)
		}
		return tx.Purge(id)
	})
	return deleted, err
}

// Start sweeps one lot every interval until Stop.
func (s *Sweeper) Start(sched *scheduler.Scheduler, interval time.Duration) error {
	if s.task != nil {
		return ErrRunning
	}
	s.logger.Info("sweeper launched",
		zap.Duration("interval", interval),
		zap.Int("batch size", s.batchSize),
		zap.Stringer("policy", s.policy.Kind),
	)
	task, err := sched.Every(interval, func(ctx context.Context) {
		rst, err := s.SweepLot(ctx)
		if err != nil {
			s.logger.Error("failed to sweep", zap.Error(err))
			return
		}
		if rst.Deleted+rst.Purged+rst.Failed > 0 {
			s.logger.Info("swept lot",
				zap.Int("visited", rst.Visited),
				zap.Int("deleted", rst.Deleted),
				zap.Int("purged", rst.Purged),
				zap.Int("failed", rst.Failed),
			)
		}
	})
	if err != nil {
		return err
	}
	s.task = task
	return nil
}

// Stop cancels future lots. A running lot completes.
func (s *Sweeper) Stop() {
	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
}
