package checkpoint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/checkpoint"
)

type storeFactory func(t *testing.T) checkpoint.Store

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	t.Run(name+"/Save_and_Load", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		data := []byte(`{"status":"listed"}`)
		require.NoError(t, store.Save("escrow-1", "tx-list", data))

		loaded, err := store.Load("escrow-1", "tx-list")
		require.NoError(t, err)
		assert.Equal(t, data, loaded)
	})

	t.Run(name+"/Load_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Load("escrow-missing", "tx-missing")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Save_Overwrite", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("escrow-1", "tx-a", []byte("first")))
		require.NoError(t, store.Save("escrow-1", "tx-a", []byte("second")))

		loaded, err := store.Load("escrow-1", "tx-a")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), loaded)
	})

	t.Run(name+"/Latest", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Latest("escrow-1")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)

		require.NoError(t, store.Save("escrow-1", "tx-list", []byte("listed")))
		require.NoError(t, store.Save("escrow-1", "tx-start", []byte("started")))
		require.NoError(t, store.Save("escrow-2", "tx-list", []byte("other")))

		latest, err := store.Latest("escrow-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("started"), latest)

		// Resaving moves a checkpoint to the end of the journal.
		require.NoError(t, store.Save("escrow-1", "tx-list", []byte("listed again")))
		latest, err = store.Latest("escrow-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("listed again"), latest)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		infos, err := store.List("escrow-missing")
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run(name+"/List_Ordered", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("escrow-1", "tx-c", []byte("a")))
		require.NoError(t, store.Save("escrow-1", "tx-a", []byte("bb")))
		require.NoError(t, store.Save("escrow-1", "tx-b", []byte("ccc")))

		infos, err := store.List("escrow-1")
		require.NoError(t, err)
		require.Len(t, infos, 3)

		assert.Equal(t, []int{1, 2, 3}, []int{infos[0].Sequence, infos[1].Sequence, infos[2].Sequence})
		assert.Equal(t, []string{"tx-c", "tx-a", "tx-b"}, []string{infos[0].TxHash, infos[1].TxHash, infos[2].TxHash})
		assert.Equal(t, []int64{1, 2, 3}, []int64{infos[0].Size, infos[1].Size, infos[2].Size})
		for _, info := range infos {
			assert.Equal(t, "escrow-1", info.EscrowID)
			assert.False(t, info.Timestamp.IsZero())
		}
	})

	t.Run(name+"/Escrows", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		ids, err := store.Escrows()
		require.NoError(t, err)
		assert.Empty(t, ids)

		require.NoError(t, store.Save("escrow-b", "tx-1", []byte("x")))
		require.NoError(t, store.Save("escrow-a", "tx-1", []byte("y")))
		require.NoError(t, store.Save("escrow-b", "tx-2", []byte("z")))

		ids, err = store.Escrows()
		require.NoError(t, err)
		assert.Equal(t, []string{"escrow-a", "escrow-b"}, ids)
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("escrow-1", "tx-a", []byte("data")))
		require.NoError(t, store.Delete("escrow-1", "tx-a"))

		_, err := store.Load("escrow-1", "tx-a")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)

		assert.NoError(t, store.Delete("escrow-missing", "tx-missing"))
	})

	t.Run(name+"/DeleteEscrow", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("escrow-1", "tx-a", []byte("a")))
		require.NoError(t, store.Save("escrow-1", "tx-b", []byte("b")))
		require.NoError(t, store.Save("escrow-2", "tx-a", []byte("other")))

		require.NoError(t, store.DeleteEscrow("escrow-1"))

		infos, err := store.List("escrow-1")
		require.NoError(t, err)
		assert.Empty(t, infos)

		infos, err = store.List("escrow-2")
		require.NoError(t, err)
		assert.Len(t, infos, 1)

		assert.NoError(t, store.DeleteEscrow("escrow-missing"))
	})

	t.Run(name+"/DataCopy", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		original := []byte("original data")
		require.NoError(t, store.Save("escrow-1", "tx-a", original))
		original[0] = 'X'

		loaded, err := store.Load("escrow-1", "tx-a")
		require.NoError(t, err)
		assert.Equal(t, []byte("original data"), loaded)
	})

	t.Run(name+"/Close_ThenError", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		assert.ErrorIs(t, store.Save("escrow-1", "tx-a", []byte("data")), checkpoint.ErrStoreClosed)

		_, err := store.Load("escrow-1", "tx-a")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.Latest("escrow-1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.List("escrow-1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.Escrows()
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContractTest(t, "MemoryStore", func(t *testing.T) checkpoint.Store {
		return checkpoint.NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContractTest(t, "SQLiteStore", func(t *testing.T) checkpoint.Store {
		store, err := checkpoint.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	})
}
