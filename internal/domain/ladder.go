package domain

import "time"

// Ladder is the per (user, symbol) strategy configuration from which blocks
// are generated. Percentages are expressed as whole percents (5 means 5%).
type Ladder struct {
	ID             string
	UserID         string
	Symbol         string
	SharesPerBlock float64
	MaxShares      float64 // exposure cap across all open blocks
	BuyPct         float64
	SellPct        float64
	StopLossPct    float64
	BlocksCreated  bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks ladder parameters at creation/update time.
func (l Ladder) Validate() error {
	if l.UserID == "" || l.Symbol == "" {
		return ErrInvalidLadder
	}
	if l.SharesPerBlock <= 0 || l.MaxShares <= 0 {
		return ErrInvalidLadder
	}
	if l.BuyPct <= 0 || l.SellPct <= 0 || l.StopLossPct < 0 {
		return ErrInvalidLadder
	}
	return nil
}

// Symbol is a tradeable instrument known to the engine. Trading acts as a
// kill switch per instrument: the orchestrator refuses to place orders while
// it is false.
type Symbol struct {
	Name      string
	Trading   bool
	UpdatedAt time.Time
}
