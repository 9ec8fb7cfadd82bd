package capacity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestMemoryTryClaimCeilings(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()

	res, err := l.TryClaim(ctx, Request{Key: "k", Claimant: "a", Units: 2, Ceiling: intp(3), ClaimantCeiling: intp(2)})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 2, res.TotalUnits)

	res, err = l.TryClaim(ctx, Request{Key: "k", Claimant: "a", Units: 1, Ceiling: intp(3), ClaimantCeiling: intp(2)})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonClaimantCeiling, res.Reason)

	res, err = l.TryClaim(ctx, Request{Key: "k", Claimant: "b", Units: 2, Ceiling: intp(3)})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonCeiling, res.Reason)

	total, _ := l.TotalUnits(ctx, "k")
	held, _ := l.ClaimantUnits(ctx, "k", "b")
	assert.Equal(t, 2, total, "rejected claims change nothing")
	assert.Equal(t, 0, held)
}

func TestMemoryRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	_, err := l.TryClaim(ctx, Request{Key: "k", Claimant: "a", Units: 3})
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, "k", "a", 5))
	total, _ := l.TotalUnits(ctx, "k")
	held, _ := l.ClaimantUnits(ctx, "k", "a")
	assert.Zero(t, total)
	assert.Zero(t, held)

	require.NoError(t, l.Release(ctx, "k", "nobody", 1))
	total, _ = l.TotalUnits(ctx, "k")
	assert.Zero(t, total)
}

func TestMemoryRejectsBadRequest(t *testing.T) {
	_, err := NewMemory().TryClaim(context.Background(), Request{Key: "k", Claimant: "a"})
	assert.Error(t, err)
}

func TestMemoryConcurrentClaimsNeverExceedCeiling(t *testing.T) {
	const ceiling, extra = 25, 15
	ctx := context.Background()
	l := NewMemory()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < ceiling+extra; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := l.TryClaim(ctx, Request{Key: "slots", Claimant: fmt.Sprint(i), Units: 1, Ceiling: intp(ceiling)})
			assert.NoError(t, err)
			if res.Accepted {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, ceiling, accepted.Load())
	total, _ := l.TotalUnits(ctx, "slots")
	assert.Equal(t, ceiling, total)
}

func TestSnapshotRestore(t *testing.T) {
	l := NewMemory()
	_, err := l.TryClaimLocked(Request{Key: "k", Claimant: "a", Units: 1})
	require.NoError(t, err)
	snap := l.SnapshotLocked()
	_, err = l.TryClaimLocked(Request{Key: "k", Claimant: "a", Units: 4})
	require.NoError(t, err)
	l.RestoreLocked(snap)

	total, _ := l.TotalUnits(context.Background(), "k")
	assert.Equal(t, 1, total)
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("7d1f6b42-4a0e-4c55-9d7b-0f3a3f9e2a11")
	assert.Equal(t, "registration:7d1f6b42-4a0e-4c55-9d7b-0f3a3f9e2a11", RegistrationKey(id))
	assert.Equal(t, "merch:7d1f6b42-4a0e-4c55-9d7b-0f3a3f9e2a11:Hoodie", MerchKey(id, "Hoodie"))
}
