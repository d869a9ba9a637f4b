package sql

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/infogrid/netmesh/log/logtest"
)

func testTables(db Executor) error {
	_, err := db.Exec(`create table testing1 (
		id varchar primary key,
		field int
	)`, nil, nil)
	return err
}

func count(tb testing.TB, db Executor) int {
	tb.Helper()
	rows, err := db.Exec("select 1 from testing1", nil, nil)
	require.NoError(tb, err)
	return rows
}

func TestReadIsRolledBack(t *testing.T) {
	db := InMemory(WithMigrations(testTables))
	require.NoError(t, db.Read(context.Background(), func(ex Executor) error {
		_, err := ex.Exec("insert into testing1(id, field) values (?1, ?2)", func(stmt *Statement) {
			stmt.BindText(1, "a")
			stmt.BindInt64(2, 20)
		}, nil)
		require.NoError(t, err)
		require.Equal(t, 1, count(t, ex))
		return nil
	}))
	require.Zero(t, count(t, db))
}

func TestUpdate(t *testing.T) {
	db := InMemory(WithMigrations(testTables))
	fail := errors.New("fail")
	err := db.Update(context.Background(), func(ex Executor) error {
		if _, err := ex.Exec("insert into testing1(id, field) values ('a', 1)", nil, nil); err != nil {
			return err
		}
		return fail
	})
	require.ErrorIs(t, err, fail)
	require.Zero(t, count(t, db))

	require.NoError(t, db.Update(context.Background(), func(ex Executor) error {
		_, err := ex.Exec("insert into testing1(id, field) values ('a', 1)", nil, nil)
		return err
	}))
	require.Equal(t, 1, count(t, db))
}

func TestDecoderStopsIteration(t *testing.T) {
	db := InMemory(WithMigrations(testTables))
	for _, id := range []string{"a", "b", "c"} {
		_, err := db.Exec("insert into testing1(id, field) values (?1, 0)", func(stmt *Statement) {
			stmt.BindText(1, id)
		}, nil)
		require.NoError(t, err)
	}
	var seen []string
	rows, err := db.Exec("select id from testing1 order by id", nil, func(stmt *Statement) bool {
		seen = append(seen, stmt.ColumnText(0))
		return len(seen) < 2
	})
	require.NoError(t, err)
	require.Equal(t, 2, rows)
	require.Equal(t, []string{"a", "b"}, seen)
}

func TestObjectExists(t *testing.T) {
	db := InMemory(WithMigrations(testTables))
	insert := "insert into testing1(id, field) values ('a', 1)"
	_, err := db.Exec(insert, nil, nil)
	require.NoError(t, err)
	_, err = db.Exec(insert, nil, nil)
	require.ErrorIs(t, err, ErrObjectExists)
}

func TestClosed(t *testing.T) {
	db := InMemory(WithMigrations(testTables))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	_, err := db.Exec("select 1", nil, nil)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, db.Update(context.Background(), func(Executor) error { return nil }), ErrClosed)
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_more.sql":  {Data: []byte("create table b (x int);\ncreate table c (x int);\n")},
		"m/0001_first.sql": {Data: []byte("create table a (x int);")},
		"m/README":         {Data: []byte("ignored")},
	}
	migrations, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, 1, migrations[0].Version)
	require.Equal(t, []string{"create table b (x int);", "create table c (x int);"}, migrations[1].Statements)

	db := InMemory(WithMigrations(Migrate(migrations)))
	version, err := Version(db)
	require.NoError(t, err)
	require.Equal(t, 2, version)

	fsys["m/0002_dup.sql"] = &fstest.MapFile{Data: []byte("select 1;")}
	_, err = LoadMigrations(fsys, "m")
	require.ErrorContains(t, err, "duplicate")

	fsys = fstest.MapFS{"m/first.sql": {Data: []byte("select 1;")}}
	_, err = LoadMigrations(fsys, "m")
	require.ErrorContains(t, err, "invalid migration")
}

func TestEmbeddedMigrationsPersist(t *testing.T) {
	uri := "file:" + filepath.Join(t.TempDir(), "state.sql")
	db, err := Open(uri, WithLogger(logtest.New(t)), WithLatencyMetering(true))
	require.NoError(t, err)
	version, err := Version(db)
	require.NoError(t, err)
	require.Equal(t, 1, version)
	_, err = db.Exec(`insert into replicas
		(key, encoding, time_created, time_updated, time_read, time_expires, data)
		values ('k', 'scale', 0, 0, 0, -1, x'00')`, nil, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// reopening must not re-run migrations
	db, err = Open(uri)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	rows, err := db.Exec("select 1 from replicas", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, rows)
}
