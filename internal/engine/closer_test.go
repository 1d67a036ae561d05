package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blocktrader/internal/domain"
)

type closerFixture struct {
	closer    *Closer
	symbols   *memSymbolStore
	blocks    *memBlockStore
	closed    *memClosedStore
	condensed *memCondensedStore
	broker    *fakeBroker
	exporter  *recordingExporter
}

type recordingExporter struct {
	calls int
	extra []domain.ClosedBlock
	err   error
}

func (e *recordingExporter) ExportClosedBlocks(ctx context.Context, userID, symbol string, extra []domain.ClosedBlock) (int, error) {
	e.calls++
	e.extra = extra
	if e.err != nil {
		return 0, e.err
	}
	return len(extra), nil
}

func newCloserFixture(t *testing.T) *closerFixture {
	t.Helper()

	f := &closerFixture{
		symbols:   newMemSymbolStore(),
		blocks:    newMemBlockStore(),
		closed:    &memClosedStore{},
		condensed: newMemCondensedStore(),
		broker:    &fakeBroker{},
		exporter:  &recordingExporter{},
	}
	require.NoError(t, f.symbols.Upsert(context.Background(), domain.Symbol{Name: "ACME", Trading: true}))

	f.closer = NewCloser(
		f.symbols, f.blocks, f.closed, f.condensed,
		f.broker, fakeLocks{}, f.exporter,
		quietRetry, 50*time.Millisecond, discardLogger(),
	)
	f.closer.pollInterval = time.Millisecond
	return f
}

func TestCloseOut_CondensesProfitAndResets(t *testing.T) {
	f := newCloserFixture(t)
	ctx := context.Background()

	// Two archived round trips plus a position still open at the broker.
	require.NoError(t, f.closed.Create(ctx, domain.ClosedBlock{ID: "c1", UserID: "u1", Symbol: "ACME", Profit: 10}))
	require.NoError(t, f.closed.Create(ctx, domain.ClosedBlock{ID: "c2", UserID: "u1", Symbol: "ACME", Profit: -4}))

	none := []domain.OpenOrder{}
	f.broker.orders = []domain.OpenOrder{
		{ID: "o1", Symbol: "ACME"},
		{ID: "o2", Symbol: "ACME"},
		{ID: "o3", Symbol: "OTHER"},
	}
	f.broker.ordersAfterCancel = &none
	f.broker.positions = []domain.Position{{Symbol: "ACME", Qty: 30}}
	f.broker.closeResult = domain.FillResult{
		OrderID: "liq-1", Symbol: "ACME", Qty: 30, Price: 101.5, Profit: 6,
		Timestamp: time.Now().UTC(),
	}

	live := domain.Block{
		ID: "b1", UserID: "u1", Symbol: "ACME", Shares: 10,
		BuyPrice: 100, SellPrice: 102,
		BuyOrderID: "o1", BuyOrderCreated: true, BuyOrderFilled: true,
	}
	require.NoError(t, f.blocks.CreateBatch(ctx, []domain.Block{live}))

	require.NoError(t, f.closer.CloseOut(ctx, "u1", "ACME"))

	// Trading is off and only this symbol's orders were cancelled.
	sym, _ := f.symbols.Get(ctx, "ACME")
	assert.False(t, sym.Trading)
	assert.ElementsMatch(t, []string{"o1", "o2"}, f.broker.cancelled)

	// 10 + (-4) archived, plus 6 from the liquidation fill.
	cb, err := f.condensed.Get(ctx, "u1", "ACME")
	require.NoError(t, err)
	assert.InDelta(t, 12.0, cb.Profit, 1e-9)

	// Archived rows are gone and the blocks are idle again.
	remaining, _ := f.closed.ListBySymbol(ctx, "u1", "ACME")
	assert.Empty(t, remaining)
	b, _ := f.blocks.Get(ctx, "b1")
	assert.True(t, b.Idle())

	// The liquidation snapshot went through the exporter.
	assert.Equal(t, 1, f.exporter.calls)
	require.Len(t, f.exporter.extra, 1)
	assert.InDelta(t, 6.0, f.exporter.extra[0].Profit, 1e-9)
}

func TestCloseOut_NoPositionResetsOnly(t *testing.T) {
	f := newCloserFixture(t)
	ctx := context.Background()

	require.NoError(t, f.closed.Create(ctx, domain.ClosedBlock{ID: "c1", UserID: "u1", Symbol: "ACME", Profit: 10}))
	require.NoError(t, f.blocks.CreateBatch(ctx, []domain.Block{{
		ID: "b1", UserID: "u1", Symbol: "ACME", BuyOrderID: "gone", BuyOrderCreated: true,
	}}))

	require.NoError(t, f.closer.CloseOut(ctx, "u1", "ACME"))

	// No liquidation means no condensation: archived history stays put.
	_, err := f.condensed.Get(ctx, "u1", "ACME")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	remaining, _ := f.closed.ListBySymbol(ctx, "u1", "ACME")
	assert.Len(t, remaining, 1)
	assert.Zero(t, f.exporter.calls)

	b, _ := f.blocks.Get(ctx, "b1")
	assert.True(t, b.Idle())
	sym, _ := f.symbols.Get(ctx, "ACME")
	assert.False(t, sym.Trading)
}

func TestCloseOut_FailsWhenOrdersNeverClear(t *testing.T) {
	f := newCloserFixture(t)
	ctx := context.Background()

	// Cancels are acknowledged but the order never leaves the book.
	f.broker.orders = []domain.OpenOrder{{ID: "stuck", Symbol: "ACME"}}

	err := f.closer.CloseOut(ctx, "u1", "ACME")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrdersStillOpen)

	// Trading stays disabled; the operator retries once the book clears.
	sym, _ := f.symbols.Get(ctx, "ACME")
	assert.False(t, sym.Trading)
}

func TestCloseOut_ExporterFailureDoesNotBlockCondensation(t *testing.T) {
	f := newCloserFixture(t)
	ctx := context.Background()

	f.exporter.err = context.DeadlineExceeded
	f.broker.positions = []domain.Position{{Symbol: "ACME", Qty: 5}}
	f.broker.closeResult = domain.FillResult{Symbol: "ACME", Qty: 5, Price: 99, Profit: -2}

	require.NoError(t, f.closer.CloseOut(ctx, "u1", "ACME"))

	cb, err := f.condensed.Get(ctx, "u1", "ACME")
	require.NoError(t, err)
	assert.InDelta(t, -2.0, cb.Profit, 1e-9)
}
