// Package ladder generates the price levels a symbol's blocks sit at.
package ladder

import (
	"fmt"
	"sort"

	"blocktrader/internal/domain"
)

// NumLevels is the nominal ladder size. The ascending leg contributes
// NumLevels/2 levels and the descending leg NumLevels/2-1, so a generated
// ladder holds NumLevels-1 entries.
const NumLevels = 200

// Level is one generated price slot.
type Level struct {
	Buy      float64
	Sell     float64
	StopLoss float64
}

// Generate computes the full ladder around currentPrice. Percentages are
// whole percents. The result is sorted ascending by buy price and contains
// no duplicates. It has no side effects; the only failure mode is a
// non-positive price or percentage.
func Generate(currentPrice, buyPct, sellPct, stopLossPct float64, dir domain.Direction) ([]Level, error) {
	if currentPrice <= 0 {
		return nil, fmt.Errorf("ladder: current price %v must be positive", currentPrice)
	}
	if buyPct <= 0 || sellPct <= 0 {
		return nil, fmt.Errorf("ladder: buy/sell percentages must be positive")
	}
	if stopLossPct < 0 {
		return nil, fmt.Errorf("ladder: stop-loss percentage must not be negative")
	}

	step := buyPct / 100 * currentPrice
	levels := make([]Level, 0, NumLevels-1)

	// Ascending leg, anchored at the current price.
	for i := 0; i < NumLevels/2; i++ {
		levels = append(levels, makeLevel(currentPrice+float64(i)*step, sellPct, stopLossPct, dir))
	}

	// Descending leg. It starts at i=1 (the anchor is already present) and
	// has one fewer entry than the ascending leg.
	for i := 1; i < NumLevels/2; i++ {
		levels = append(levels, makeLevel(currentPrice-float64(i)*step, sellPct, stopLossPct, dir))
	}

	sort.Slice(levels, func(i, j int) bool { return levels[i].Buy < levels[j].Buy })
	return levels, nil
}

func makeLevel(buy, sellPct, stopLossPct float64, dir domain.Direction) Level {
	sell := buy * (1 + sellPct/100)
	var stop float64
	if dir == domain.DirectionShort {
		stop = sell * (1 + stopLossPct/100)
	} else {
		stop = buy * (1 - stopLossPct/100)
	}
	return Level{Buy: buy, Sell: sell, StopLoss: stop}
}

// Bounds returns the minimum and maximum buy price of a generated set.
// Callers must not pass an empty slice.
func Bounds(levels []Level) (min, max float64) {
	min, max = levels[0].Buy, levels[0].Buy
	for _, lv := range levels[1:] {
		if lv.Buy < min {
			min = lv.Buy
		}
		if lv.Buy > max {
			max = lv.Buy
		}
	}
	return min, max
}
