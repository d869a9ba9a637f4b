package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/infogrid/netmesh/sql"
	"github.com/infogrid/netmesh/sql/replicas"
)

// SQL is a Store backed by the replicas table of a sqlite database.
type SQL struct {
	db *sql.Database
}

var _ Store = (*SQL)(nil)

// NewSQL wraps an open database.
func NewSQL(db *sql.Database) *SQL {
	return &SQL{db: db}
}

func toRecord(v Value) replicas.Record {
	return replicas.Record{
		Key:         v.Key,
		Encoding:    v.EncodingID,
		TimeCreated: v.TimeCreated,
		TimeUpdated: v.TimeUpdated,
		TimeRead:    v.TimeRead,
		TimeExpires: v.TimeExpires,
		Data:        v.Data,
	}
}

func fromRecord(r replicas.Record) Value {
	return Value{
		Key:         r.Key,
		EncodingID:  r.Encoding,
		TimeCreated: r.TimeCreated,
		TimeUpdated: r.TimeUpdated,
		TimeRead:    r.TimeRead,
		TimeExpires: r.TimeExpires,
		Data:        r.Data,
	}
}

func translate(err error) error {
	if errors.Is(err, sql.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func (s *SQL) Get(_ context.Context, key string) (Value, error) {
	rec, err := replicas.Get(s.db, key)
	if err != nil {
		return Value{}, translate(err)
	}
	return fromRecord(rec), nil
}

func (s *SQL) Put(_ context.Context, value Value) error {
	return replicas.Put(s.db, toRecord(value))
}

func (s *SQL) Delete(_ context.Context, key string) error {
	return translate(replicas.Delete(s.db, key))
}

func (s *SQL) Iterate(ctx context.Context, after string, limit int, fn func(Value) error) error {
	var values []Value
	if err := replicas.IterateAfter(s.db, after, limit, func(rec replicas.Record) bool {
		values = append(values, fromRecord(rec))
		return true
	}); err != nil {
		return err
	}
	// fn runs outside of the query so that it may use the database itself
	for _, v := range values {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQL) Apply(ctx context.Context, puts []Value, deletes []string) error {
	return s.db.Update(ctx, func(tx sql.Executor) error {
		for _, v := range puts {
			if err := replicas.Put(tx, toRecord(v)); err != nil {
				return err
			}
		}
		for _, k := range deletes {
			if err := replicas.Delete(tx, k); err != nil && !errors.Is(err, sql.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}
