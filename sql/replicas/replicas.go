// Package replicas stores encoded replica snapshots keyed by the external
// form of their identifier.
package replicas

import (
	"fmt"

	"github.com/infogrid/netmesh/sql"
)

// Record is one row of the replicas table.
type Record struct {
	Key         string
	Encoding    string
	TimeCreated int64
	TimeUpdated int64
	TimeRead    int64
	TimeExpires int64
	Data        []byte
}

const columns = "key, encoding, time_created, time_updated, time_read, time_expires, data"

func decodeRecord(stmt *sql.Statement) Record {
	rec := Record{
		Key:         stmt.ColumnText(0),
		Encoding:    stmt.ColumnText(1),
		TimeCreated: stmt.ColumnInt64(2),
		TimeUpdated: stmt.ColumnInt64(3),
		TimeRead:    stmt.ColumnInt64(4),
		TimeExpires: stmt.ColumnInt64(5),
	}
	rec.Data = make([]byte, stmt.ColumnLen(6))
	stmt.ColumnBytes(6, rec.Data)
	return rec
}

// Put inserts the record or replaces the one with the same key.
func Put(db sql.Executor, rec Record) error {
	if _, err := db.Exec(`insert into replicas (`+columns+`)
		values (?1, ?2, ?3, ?4, ?5, ?6, ?7)
		on conflict (key) do update set
			encoding = ?2, time_created = ?3, time_updated = ?4,
			time_read = ?5, time_expires = ?6, data = ?7;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, rec.Key)
			stmt.BindText(2, rec.Encoding)
			stmt.BindInt64(3, rec.TimeCreated)
			stmt.BindInt64(4, rec.TimeUpdated)
			stmt.BindInt64(5, rec.TimeRead)
			stmt.BindInt64(6, rec.TimeExpires)
			stmt.BindBytes(7, rec.Data)
		}, nil); err != nil {
		return fmt.Errorf("put replica %s: %w", rec.Key, err)
	}
	return nil
}

// Get loads the record with the given key.
func Get(db sql.Executor, key string) (Record, error) {
	var rec Record
	rows, err := db.Exec("select "+columns+" from replicas where key = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, key)
		}, func(stmt *sql.Statement) bool {
			rec = decodeRecord(stmt)
			return false
		})
	if err != nil {
		return Record{}, fmt.Errorf("get replica %s: %w", key, err)
	}
	if rows == 0 {
		return Record{}, fmt.Errorf("%w: replica %s", sql.ErrNotFound, key)
	}
	return rec, nil
}

// Delete removes the record with the given key.
func Delete(db sql.Executor, key string) error {
	rows, err := db.Exec("delete from replicas where key = ?1 returning key;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, key)
		}, nil)
	if err != nil {
		return fmt.Errorf("delete replica %s: %w", key, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: replica %s", sql.ErrNotFound, key)
	}
	return nil
}

// IterateAfter calls fn for at most limit records with keys greater than after,
// in key order. Iteration stops early when fn returns false.
func IterateAfter(db sql.Executor, after string, limit int, fn func(Record) bool) error {
	if _, err := db.Exec("select "+columns+" from replicas where key > ?1 order by key limit ?2;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, after)
			stmt.BindInt64(2, int64(limit))
		}, func(stmt *sql.Statement) bool {
			return fn(decodeRecord(stmt))
		}); err != nil {
		return fmt.Errorf("iterate replicas after %q: %w", after, err)
	}
	return nil
}
