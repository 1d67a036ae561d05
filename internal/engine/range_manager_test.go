package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blocktrader/internal/domain"
	"blocktrader/internal/ladder"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rangeFixture(t *testing.T, price float64) (*RangeManager, *memBlockStore, *fakeBroker) {
	t.Helper()

	ladders := newMemLadderStore()
	blocks := newMemBlockStore()
	accounts := &memAccountStore{accounts: map[string]domain.Account{
		"u1": {UserID: "u1", Direction: domain.DirectionLong, Horizon: domain.HorizonSwing},
	}}
	broker := &fakeBroker{price: price}

	require.NoError(t, ladders.Create(context.Background(), domain.Ladder{
		ID: "l1", UserID: "u1", Symbol: "ACME",
		SharesPerBlock: 10, MaxShares: 100,
		BuyPct: 5, SellPct: 2, StopLossPct: 3,
		BlocksCreated: true,
	}))

	m := NewRangeManager(ladders, blocks, accounts,
		NewPriceSource(broker, nil, quietRetry), discardLogger())
	return m, blocks, broker
}

func TestRealign_PopulatesEmptySet(t *testing.T) {
	m, blocks, _ := rangeFixture(t, 100)

	require.NoError(t, m.Realign(context.Background(), "u1", "ACME"))

	got, err := blocks.ListBySymbol(context.Background(), "u1", "ACME")
	require.NoError(t, err)
	assert.Len(t, got, ladder.NumLevels-1)
}

func TestRealign_Idempotent(t *testing.T) {
	m, blocks, _ := rangeFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, m.Realign(ctx, "u1", "ACME"))
	first, err := blocks.ListBySymbol(ctx, "u1", "ACME")
	require.NoError(t, err)

	// Same price, same parameters: the second pass must not move anything.
	require.NoError(t, m.Realign(ctx, "u1", "ACME"))
	second, err := blocks.ListBySymbol(ctx, "u1", "ACME")
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	ids := make(map[string]bool, len(first))
	for _, b := range first {
		ids[b.ID] = true
	}
	for _, b := range second {
		assert.True(t, ids[b.ID], "block %s appeared out of nowhere", b.ID)
	}
}

func TestRealign_DriftAddsOnlyExposedEdges(t *testing.T) {
	m, blocks, broker := rangeFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, m.Realign(ctx, "u1", "ACME"))
	before, _ := blocks.ListBySymbol(ctx, "u1", "ACME")
	beforeIDs := make(map[string]bool, len(before))
	oldMin, oldMax := before[0].BuyPrice, before[0].BuyPrice
	for _, b := range before {
		beforeIDs[b.ID] = true
		if b.BuyPrice < oldMin {
			oldMin = b.BuyPrice
		}
		if b.BuyPrice > oldMax {
			oldMax = b.BuyPrice
		}
	}

	// Price drifts up 10%. The ladder step scales with price, so the
	// recomputed range is wider and only its exposed edges get new blocks.
	broker.mu.Lock()
	broker.price = 110
	broker.mu.Unlock()

	newLevels, err := ladder.Generate(110, 5, 2, 3, domain.DirectionLong)
	require.NoError(t, err)
	wantAdded := 0
	for _, lv := range newLevels {
		if lv.Buy < oldMin || lv.Buy > oldMax {
			wantAdded++
		}
	}
	require.Greater(t, wantAdded, 0)

	require.NoError(t, m.Realign(ctx, "u1", "ACME"))
	after, err := blocks.ListBySymbol(ctx, "u1", "ACME")
	require.NoError(t, err)

	// No existing block was in range to delete, so the delta is purely the
	// exposed edges; interior levels of the new set are not re-added.
	assert.Len(t, after, len(before)+wantAdded)
	survivors := 0
	for _, b := range after {
		if beforeIDs[b.ID] {
			survivors++
		}
	}
	assert.Equal(t, len(before), survivors)
}

func TestRealign_KeepsOutOfRangeBlocksWithLiveOrders(t *testing.T) {
	m, blocks, broker := rangeFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, m.Realign(ctx, "u1", "ACME"))

	// Pin a live order on the highest block, then drop the price so the
	// recomputed maximum falls well below it.
	all, _ := blocks.ListBySymbol(ctx, "u1", "ACME")
	highest := all[0]
	for _, b := range all {
		if b.BuyPrice > highest.BuyPrice {
			highest = b
		}
	}
	highest.BuyOrderCreated = true
	highest.BuyOrderID = "live-1"
	require.NoError(t, blocks.Update(ctx, highest))

	broker.mu.Lock()
	broker.price = 50
	broker.mu.Unlock()
	require.NoError(t, m.Realign(ctx, "u1", "ACME"))

	_, err := blocks.Get(ctx, highest.ID)
	assert.NoError(t, err, "block with a live order must survive range upkeep")
}

func TestRealign_DeletesOutOfRangeIdleBlocks(t *testing.T) {
	m, blocks, broker := rangeFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, m.Realign(ctx, "u1", "ACME"))
	all, _ := blocks.ListBySymbol(ctx, "u1", "ACME")
	highest := all[0]
	for _, b := range all {
		if b.BuyPrice > highest.BuyPrice {
			highest = b
		}
	}

	// Halving the price shrinks the new maximum (50 + 99*2.5) far below the
	// old top of the ladder; idle blocks above it must go.
	broker.mu.Lock()
	broker.price = 50
	broker.mu.Unlock()
	require.NoError(t, m.Realign(ctx, "u1", "ACME"))

	_, err := blocks.Get(ctx, highest.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRealign_AbortsOnPriceLookupFailure(t *testing.T) {
	m, blocks, broker := rangeFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, m.Realign(ctx, "u1", "ACME"))
	before, _ := blocks.ListBySymbol(ctx, "u1", "ACME")

	broker.mu.Lock()
	broker.priceErr = domain.ErrNotFound
	broker.mu.Unlock()

	err := m.Realign(ctx, "u1", "ACME")
	assert.Error(t, err)

	after, _ := blocks.ListBySymbol(ctx, "u1", "ACME")
	assert.Equal(t, len(before), len(after), "failed update must not partially apply")
}
