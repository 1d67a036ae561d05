package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrLadderActive    = errors.New("ladder has active blocks or trading")
	ErrInvalidLadder   = errors.New("invalid ladder parameters")
	ErrTradingDisabled = errors.New("trading disabled for symbol")
	ErrOrdersStillOpen = errors.New("open orders remain after cancellation")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrLockHeld        = errors.New("lock already held")
)
