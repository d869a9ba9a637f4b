package replicas

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infogrid/netmesh/sql"
)

func record(key string) Record {
	return Record{
		Key:         key,
		Encoding:    "scale",
		TimeCreated: 1,
		TimeUpdated: 2,
		TimeRead:    3,
		TimeExpires: -1,
		Data:        []byte("data-" + key),
	}
}

func TestPutGetDelete(t *testing.T) {
	db := sql.InMemory()

	_, err := Get(db, "mem:a#x")
	require.ErrorIs(t, err, sql.ErrNotFound)

	rec := record("mem:a#x")
	require.NoError(t, Put(db, rec))
	got, err := Get(db, rec.Key)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	rec.TimeRead = 10
	rec.Data = []byte("updated")
	require.NoError(t, Put(db, rec))
	got, err = Get(db, rec.Key)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	require.NoError(t, Delete(db, rec.Key))
	require.ErrorIs(t, Delete(db, rec.Key), sql.ErrNotFound)
	_, err = Get(db, rec.Key)
	require.ErrorIs(t, err, sql.ErrNotFound)
}

func TestIterateAfter(t *testing.T) {
	db := sql.InMemory()
	for i := 9; i >= 0; i-- {
		require.NoError(t, Put(db, record(fmt.Sprintf("mem:a#%02d", i))))
	}

	var keys []string
	collect := func(rec Record) bool {
		keys = append(keys, rec.Key)
		return true
	}
	require.NoError(t, IterateAfter(db, "", 4, collect))
	require.Equal(t, []string{"mem:a#00", "mem:a#01", "mem:a#02", "mem:a#03"}, keys)

	keys = nil
	require.NoError(t, IterateAfter(db, "mem:a#07", 4, collect))
	require.Equal(t, []string{"mem:a#08", "mem:a#09"}, keys)

	keys = nil
	require.NoError(t, IterateAfter(db, "", 10, func(rec Record) bool {
		keys = append(keys, rec.Key)
		return len(keys) < 2
	}))
	require.Len(t, keys, 2)
}

func TestUpdateRollback(t *testing.T) {
	db := sql.InMemory()
	abort := errors.New("abort")
	err := db.Update(context.Background(), func(tx sql.Executor) error {
		require.NoError(t, Put(tx, record("mem:a#x")))
		_, err := Get(tx, "mem:a#x")
		require.NoError(t, err)
		return abort
	})
	require.ErrorIs(t, err, abort)

	_, err = Get(db, "mem:a#x")
	require.ErrorIs(t, err, sql.ErrNotFound)
}
