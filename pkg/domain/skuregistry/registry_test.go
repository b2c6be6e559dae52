package skuregistry_test

import (
	"testing"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/domain/skuregistry"
	"github.com/stretchr/testify/require"
)

func TestReserveAndRelease(t *testing.T) {
	r, err := skuregistry.New("corr-1", "u1")
	require.NoError(t, err)

	require.NoError(t, r.Reserve("u1", "SKU-1", "V1"))

	owner, ok := r.Owner("SKU-1")
	require.True(t, ok)
	require.Equal(t, "V1", owner)

	t.Run("DoubleReserveConflicts", func(t *testing.T) {
		err := r.Reserve("u1", "SKU-1", "V2")
		require.ErrorIs(t, err, domain.ErrDomainRule)
	})

	t.Run("ReleaseByWrongOwnerRejected", func(t *testing.T) {
		require.ErrorIs(t, r.Release("u1", "SKU-1", "V2"), domain.ErrDomainRule)
	})

	require.NoError(t, r.Release("u1", "SKU-1", "V1"))
	_, ok = r.Owner("SKU-1")
	require.False(t, ok)

	require.ErrorIs(t, r.Release("u1", "SKU-1", "V1"), domain.ErrDomainRule)
}

func TestSnapshotRoundTrip(t *testing.T) {
	r, err := skuregistry.New("corr-1", "u1")
	require.NoError(t, err)
	require.NoError(t, r.Reserve("u1", "SKU-1", "V1"))

	snap, err := r.ToSnapshot()
	require.NoError(t, err)
	require.Equal(t, skuregistry.RegistryID, snap.AggregateID)

	loaded, err := skuregistry.Load(snap)
	require.NoError(t, err)
	owner, ok := loaded.Owner("SKU-1")
	require.True(t, ok)
	require.Equal(t, "V1", owner)
	require.Equal(t, r.Version(), loaded.Version())
}
