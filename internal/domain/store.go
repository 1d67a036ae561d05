package domain

import (
	"context"
	"io"
	"time"
)

// LadderStore persists strategy configurations.
type LadderStore interface {
	Create(ctx context.Context, l Ladder) error
	Update(ctx context.Context, l Ladder) error
	Get(ctx context.Context, userID, symbol string) (Ladder, error)
	Delete(ctx context.Context, userID, symbol string) error
	// ListCreated returns every ladder whose initial block batch exists,
	// i.e. the set of (user, symbol) pairs the schedulers drive.
	ListCreated(ctx context.Context) ([]Ladder, error)
}

// BlockStore persists blocks keyed by (user, symbol).
type BlockStore interface {
	CreateBatch(ctx context.Context, blocks []Block) error
	Update(ctx context.Context, b Block) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Block, error)
	ListBySymbol(ctx context.Context, userID, symbol string) ([]Block, error)
	// FindByOrderID matches a block by any of its stored external order
	// identifiers. Returns ErrNotFound when no block carries the ID.
	FindByOrderID(ctx context.Context, userID, symbol, orderID string) (Block, error)
	// ResetAll returns every block for the symbol to idle in one statement.
	ResetAll(ctx context.Context, userID, symbol string) error
}

// ClosedBlockStore persists archived round trips.
type ClosedBlockStore interface {
	Create(ctx context.Context, cb ClosedBlock) error
	ListBySymbol(ctx context.Context, userID, symbol string) ([]ClosedBlock, error)
	SumProfit(ctx context.Context, userID, symbol string) (float64, error)
	DeleteBySymbol(ctx context.Context, userID, symbol string) error
}

// CondensedBlockStore persists rolling per-symbol profit totals.
type CondensedBlockStore interface {
	Get(ctx context.Context, userID, symbol string) (CondensedBlock, error)
	// AddProfit adds delta to the symbol's total, creating the row with
	// delta as its initial value when absent.
	AddProfit(ctx context.Context, userID, symbol string, delta float64) error
}

// AccountStore persists trading profiles.
type AccountStore interface {
	Upsert(ctx context.Context, a Account) error
	Get(ctx context.Context, userID string) (Account, error)
	List(ctx context.Context) ([]Account, error)
}

// SymbolStore persists instruments and their trading flag.
type SymbolStore interface {
	Upsert(ctx context.Context, s Symbol) error
	Get(ctx context.Context, name string) (Symbol, error)
	SetTrading(ctx context.Context, name string, trading bool) error
	List(ctx context.Context) ([]Symbol, error)
}

// SignalBus carries the engine's internal signals: ephemeral pub/sub plus a
// durable stream for fill events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]StreamMessage, error)
}

// LockManager provides distributed mutual exclusion, used to keep close-out
// runs for one (user, symbol) from overlapping.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// PriceCache caches recent quotes so the engine does not hammer the broker
// for the same symbol across users.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64) error
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// BlobWriter uploads data to object storage. Used to export closed-block
// snapshots before condensation deletes them.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
