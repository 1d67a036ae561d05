package domain

import "time"

// Direction indicates whether an account trades the ladder from the long or
// the short side. It selects which leg of a block opens a round trip.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Horizon indicates whether an account trades intraday or multi-day. It
// selects the closing-order type used once the opening leg fills.
type Horizon string

const (
	HorizonDay   Horizon = "day"
	HorizonSwing Horizon = "swing"
)

// Account is the per-user trading profile. It is read-only input to the
// engine; direction and horizon parameterize one engine rather than
// selecting a separate implementation.
type Account struct {
	UserID    string
	Direction Direction
	Horizon   Horizon
	CreatedAt time.Time
}

// Valid reports whether direction and horizon carry known values.
func (a Account) Valid() bool {
	okDir := a.Direction == DirectionLong || a.Direction == DirectionShort
	okHor := a.Horizon == HorizonDay || a.Horizon == HorizonSwing
	return okDir && okHor
}
