package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackendsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	level, err := NewLevelDB(filepath.Join(dir, "leveldb"))
	require.NoError(t, err)
	defer level.Close()

	boltDB, err := NewBoltDB(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	defer boltDB.Close()

	backends := map[string]Database{
		"mem":   NewMemDB(),
		"level": level,
		"bolt":  boltDB,
	}

	for name, db := range backends {
		t.Run(name, func(t *testing.T) {
			key := []byte("token/USD/balance/abc")
			_, err := db.Get(key)
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, db.Put(key, []byte{0x01, 0x02}))
			value, err := db.Get(key)
			require.NoError(t, err)
			require.Equal(t, []byte{0x01, 0x02}, value)

			require.NoError(t, db.Put(key, []byte{0x03}))
			value, err = db.Get(key)
			require.NoError(t, err)
			require.Equal(t, []byte{0x03}, value)

			require.NoError(t, db.Delete(key))
			_, err = db.Get(key)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte{0xAA}
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 0xBB
	stored, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA}, stored)
}
