// Package sql keeps replicas in a sqlite database. Connections are pooled;
// writes go through immediate transactions so that concurrent writers queue
// on the busy timeout instead of failing on upgrade.
package sql

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	sqlite "github.com/go-llsqlite/crawshaw"
	"github.com/go-llsqlite/crawshaw/sqlitex"
	"go.uber.org/zap"
)

var (
	// ErrNoConnection is returned when no pooled connection became free.
	ErrNoConnection = errors.New("database: no free connection")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("database: closed")
	// ErrNotFound is returned when a queried row does not exist.
	ErrNotFound = errors.New("database: not found")
	// ErrObjectExists is returned when a unique constraint rejects an insert.
	ErrObjectExists = errors.New("database: object exists")
)

// Statement is a prepared sqlite statement.
type Statement = sqlite.Stmt

// Encoder binds the parameters of a statement, positional (?1) or named (@key).
type Encoder func(*Statement)

// Decoder is called once per row. Returning false stops the iteration.
type Decoder func(*Statement) bool

// Executor runs one statement.
type Executor interface {
	Exec(query string, enc Encoder, dec Decoder) (int, error)
}

type options struct {
	connections int
	busyTimeout time.Duration
	memory      bool
	latency     bool
	logger      *zap.Logger
	migrations  Migrations
}

type Opt func(*options)

// WithConnections sets the size of the connection pool.
func WithConnections(n int) Opt {
	return func(o *options) {
		o.connections = n
	}
}

// WithBusyTimeout sets how long a statement waits for a lock held by another
// connection.
func WithBusyTimeout(d time.Duration) Opt {
	return func(o *options) {
		o.busyTimeout = d
	}
}

func WithLogger(logger *zap.Logger) Opt {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLatencyMetering records the duration of every query.
func WithLatencyMetering(enable bool) Opt {
	return func(o *options) {
		o.latency = enable
	}
}

// WithMigrations replaces the embedded schema.
func WithMigrations(migrations Migrations) Opt {
	return func(o *options) {
		o.migrations = migrations
	}
}

// InMemory opens a private in-memory database with a single connection.
// It panics on failure and is meant for tests.
func InMemory(opts ...Opt) *Database {
	opts = append(opts, WithConnections(1), func(o *options) { o.memory = true })
	db, err := Open("file::memory:?mode=memory", opts...)
	if err != nil {
		panic(err)
	}
	return db
}

// Open opens the database at uri, creating it if needed, and migrates its
// schema. File databases use WAL journaling.
func Open(uri string, opts ...Opt) (*Database, error) {
	o := options{
		connections: 8,
		busyTimeout: 5 * time.Second,
		logger:      zap.NewNop(),
		migrations:  embeddedMigrations,
	}
	for _, opt := range opts {
		opt(&o)
	}
	pool, err := openPool(uri, o)
	if err != nil {
		return nil, err
	}
	db := &Database{
		pool:        pool,
		logger:      o.logger,
		latency:     o.latency,
		busyTimeout: o.busyTimeout,
	}
	if o.migrations != nil {
		if err := db.Update(context.Background(), func(ex Executor) error {
			return o.migrations(ex)
		}); err != nil {
			return nil, errors.Join(fmt.Errorf("migrate %s: %w", uri, err), db.Close())
		}
		version, err := Version(db)
		if err != nil {
			return nil, errors.Join(err, db.Close())
		}
		db.logger.Debug("database ready", zap.String("uri", uri), zap.Int("schema", version))
	}
	return db, nil
}

func openPool(uri string, o options) (*sqlitex.Pool, error) {
	if o.memory {
		pool, err := sqlitex.Open(uri, 0, o.connections)
		if err != nil {
			return nil, fmt.Errorf("open in-memory db: %w", err)
		}
		return pool, nil
	}
	flags := sqlite.SQLITE_OPEN_READWRITE | sqlite.SQLITE_OPEN_WAL |
		sqlite.SQLITE_OPEN_URI | sqlite.SQLITE_OPEN_NOMUTEX
	pool, err := sqlitex.Open(uri, flags, o.connections)
	if err == nil {
		return pool, nil
	}
	if sqlite.ErrCode(err) != sqlite.SQLITE_CANTOPEN {
		return nil, fmt.Errorf("open db %s: %w", uri, err)
	}
	pool, err = sqlitex.Open(uri, flags|sqlite.SQLITE_OPEN_CREATE, o.connections)
	if err != nil {
		return nil, fmt.Errorf("create db %s: %w", uri, err)
	}
	return pool, nil
}

// Database is a pool of connections to one sqlite database.
type Database struct {
	pool        *sqlitex.Pool
	logger      *zap.Logger
	latency     bool
	busyTimeout time.Duration
	closed      atomic.Bool
}

var _ Executor = (*Database)(nil)

func (db *Database) acquire(ctx context.Context) (*sqlite.Conn, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	conn := db.pool.Get(ctx)
	if conn == nil {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoConnection, err)
		}
		return nil, ErrNoConnection
	}
	connWaitLatency.Observe(time.Since(start).Seconds())
	conn.SetBusyTimeout(db.busyTimeout)
	return conn, nil
}

// Exec runs query on a pooled connection outside of any explicit transaction.
func (db *Database) Exec(query string, enc Encoder, dec Decoder) (int, error) {
	conn, err := db.acquire(context.Background())
	if err != nil {
		return 0, err
	}
	defer db.pool.Put(conn)
	return db.run(conn, query, enc, dec)
}

// Read runs fn in a deferred transaction that is always rolled back. All
// queries in fn see the same snapshot.
func (db *Database) Read(ctx context.Context, fn func(Executor) error) error {
	return db.transact(ctx, "BEGIN;", false, fn)
}

// Update runs fn in an immediate transaction and commits it if fn returns nil.
func (db *Database) Update(ctx context.Context, fn func(Executor) error) error {
	return db.transact(ctx, "BEGIN IMMEDIATE;", true, fn)
}

func (db *Database) transact(ctx context.Context, begin string, commit bool, fn func(Executor) error) error {
	conn, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	defer db.pool.Put(conn)
	if err := step(conn, begin); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	tx := &txn{db: db, conn: conn}
	if err := fn(tx); err != nil {
		if rerr := step(conn, "ROLLBACK;"); rerr != nil {
			db.logger.Warn("rollback failed", zap.Error(rerr))
		}
		return err
	}
	if !commit {
		return step(conn, "ROLLBACK;")
	}
	if err := step(conn, "COMMIT;"); err != nil {
		return errors.Join(fmt.Errorf("commit: %w", err), step(conn, "ROLLBACK;"))
	}
	return nil
}

// Close waits for borrowed connections and closes the pool. Closing twice is
// a no-op.
func (db *Database) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := db.pool.Close(); err != nil {
		return fmt.Errorf("close pool: %w", err)
	}
	return nil
}

func (db *Database) run(conn *sqlite.Conn, query string, enc Encoder, dec Decoder) (int, error) {
	if db.latency {
		defer observeQuery(query, time.Now())
	}
	return exec(conn, query, enc, dec)
}

type txn struct {
	db   *Database
	conn *sqlite.Conn
}

func (tx *txn) Exec(query string, enc Encoder, dec Decoder) (int, error) {
	return tx.db.run(tx.conn, query, enc, dec)
}

func step(conn *sqlite.Conn, query string) error {
	_, err := conn.Prep(query).Step()
	return err
}

func exec(conn *sqlite.Conn, query string, enc Encoder, dec Decoder) (int, error) {
	stmt, err := conn.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("prepare %s: %w", query, err)
	}
	defer stmt.ClearBindings()
	if enc != nil {
		enc(stmt)
	}
	rows := 0
	for {
		ok, err := stmt.Step()
		if err != nil {
			switch sqlite.ErrCode(err) {
			case sqlite.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite.SQLITE_CONSTRAINT_UNIQUE:
				return rows, ErrObjectExists
			}
			return rows, fmt.Errorf("step %d: %w", rows, err)
		}
		if !ok {
			return rows, nil
		}
		rows++
		if dec != nil && !dec(stmt) {
			if err := stmt.Reset(); err != nil {
				return rows, fmt.Errorf("reset: %w", err)
			}
			return rows, nil
		}
	}
}
