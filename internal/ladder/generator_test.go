package ladder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blocktrader/internal/domain"
)

func TestGenerate_WorkedExample(t *testing.T) {
	levels, err := Generate(100, 5, 2, 3, domain.DirectionLong)
	require.NoError(t, err)
	require.Len(t, levels, NumLevels-1)

	// Locate the anchor and its immediate neighbours.
	byBuy := make(map[float64]Level, len(levels))
	for _, lv := range levels {
		byBuy[lv.Buy] = lv
	}

	anchor, ok := byBuy[100.0]
	require.True(t, ok, "anchor level missing")
	assert.InDelta(t, 102.00, anchor.Sell, 1e-9)
	assert.InDelta(t, 97.00, anchor.StopLoss, 1e-9)

	up, ok := byBuy[105.0]
	require.True(t, ok, "first ascending level missing")
	assert.InDelta(t, 107.10, up.Sell, 1e-9)
	assert.InDelta(t, 101.85, up.StopLoss, 1e-9)

	down, ok := byBuy[95.0]
	require.True(t, ok, "first descending level missing")
	assert.InDelta(t, 96.90, down.Sell, 1e-9)
	assert.InDelta(t, 92.15, down.StopLoss, 1e-9)
}

func TestGenerate_SortedAscendingNoDuplicates(t *testing.T) {
	levels, err := Generate(42.5, 1.5, 0.75, 2, domain.DirectionLong)
	require.NoError(t, err)
	require.Len(t, levels, NumLevels-1)

	for i := 1; i < len(levels); i++ {
		assert.Greater(t, levels[i].Buy, levels[i-1].Buy,
			"levels must be strictly ascending at index %d", i)
	}
}

func TestGenerate_ShortStopLossAboveSell(t *testing.T) {
	levels, err := Generate(200, 2, 1, 4, domain.DirectionShort)
	require.NoError(t, err)

	for _, lv := range levels {
		assert.Greater(t, lv.Sell, lv.Buy)
		assert.InDelta(t, lv.Sell*1.04, lv.StopLoss, 1e-9)
	}
}

func TestGenerate_RejectsInvalidInputs(t *testing.T) {
	cases := []struct {
		name                   string
		price, buy, sell, stop float64
	}{
		{"zero price", 0, 5, 2, 3},
		{"negative price", -10, 5, 2, 3},
		{"zero buy pct", 100, 0, 2, 3},
		{"zero sell pct", 100, 5, 0, 3},
		{"negative stop pct", 100, 5, 2, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Generate(tc.price, tc.buy, tc.sell, tc.stop, domain.DirectionLong)
			assert.Error(t, err)
		})
	}
}

func TestBounds(t *testing.T) {
	levels, err := Generate(100, 5, 2, 3, domain.DirectionLong)
	require.NoError(t, err)

	min, max := Bounds(levels)
	assert.InDelta(t, 100-99*5, min, 1e-9)
	assert.InDelta(t, 100+99*5, max, 1e-9)
}
