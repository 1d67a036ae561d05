package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blocktrader/internal/domain"
)

// In-memory fakes for the engine's collaborators.

type memLadderStore struct {
	mu      sync.Mutex
	ladders map[string]domain.Ladder
}

func newMemLadderStore() *memLadderStore {
	return &memLadderStore{ladders: make(map[string]domain.Ladder)}
}

func lkey(userID, symbol string) string { return userID + "|" + symbol }

func (s *memLadderStore) Create(ctx context.Context, l domain.Ladder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ladders[lkey(l.UserID, l.Symbol)] = l
	return nil
}

func (s *memLadderStore) Update(ctx context.Context, l domain.Ladder) error {
	return s.Create(ctx, l)
}

func (s *memLadderStore) Get(ctx context.Context, userID, symbol string) (domain.Ladder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ladders[lkey(userID, symbol)]
	if !ok {
		return domain.Ladder{}, domain.ErrNotFound
	}
	return l, nil
}

func (s *memLadderStore) Delete(ctx context.Context, userID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ladders, lkey(userID, symbol))
	return nil
}

func (s *memLadderStore) ListCreated(ctx context.Context) ([]domain.Ladder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ladder
	for _, l := range s.ladders {
		if l.BlocksCreated {
			out = append(out, l)
		}
	}
	return out, nil
}

type memBlockStore struct {
	mu     sync.Mutex
	blocks map[string]domain.Block
}

func newMemBlockStore() *memBlockStore {
	return &memBlockStore{blocks: make(map[string]domain.Block)}
}

func (s *memBlockStore) CreateBatch(ctx context.Context, blocks []domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range blocks {
		s.blocks[b.ID] = b
	}
	return nil
}

func (s *memBlockStore) Update(ctx context.Context, b domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[b.ID]; !ok {
		return domain.ErrNotFound
	}
	s.blocks[b.ID] = b
	return nil
}

func (s *memBlockStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, id)
	return nil
}

func (s *memBlockStore) Get(ctx context.Context, id string) (domain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return domain.Block{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *memBlockStore) ListBySymbol(ctx context.Context, userID, symbol string) ([]domain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Block
	for _, b := range s.blocks {
		if b.UserID == userID && b.Symbol == symbol {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBlockStore) FindByOrderID(ctx context.Context, userID, symbol, orderID string) (domain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		if b.UserID != userID || b.Symbol != symbol {
			continue
		}
		if b.BuyOrderID == orderID || b.SellOrderID == orderID || b.StopLossOrderID == orderID {
			return b, nil
		}
	}
	return domain.Block{}, domain.ErrNotFound
}

func (s *memBlockStore) ResetAll(ctx context.Context, userID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.blocks {
		if b.UserID == userID && b.Symbol == symbol {
			b.Reset()
			s.blocks[id] = b
		}
	}
	return nil
}

type memClosedStore struct {
	mu     sync.Mutex
	closed []domain.ClosedBlock
}

func (s *memClosedStore) Create(ctx context.Context, cb domain.ClosedBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, cb)
	return nil
}

func (s *memClosedStore) ListBySymbol(ctx context.Context, userID, symbol string) ([]domain.ClosedBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ClosedBlock
	for _, cb := range s.closed {
		if cb.UserID == userID && cb.Symbol == symbol {
			out = append(out, cb)
		}
	}
	return out, nil
}

func (s *memClosedStore) SumProfit(ctx context.Context, userID, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum float64
	for _, cb := range s.closed {
		if cb.UserID == userID && cb.Symbol == symbol {
			sum += cb.Profit
		}
	}
	return sum, nil
}

func (s *memClosedStore) DeleteBySymbol(ctx context.Context, userID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.ClosedBlock
	for _, cb := range s.closed {
		if cb.UserID != userID || cb.Symbol != symbol {
			kept = append(kept, cb)
		}
	}
	s.closed = kept
	return nil
}

type memCondensedStore struct {
	mu     sync.Mutex
	totals map[string]domain.CondensedBlock
}

func newMemCondensedStore() *memCondensedStore {
	return &memCondensedStore{totals: make(map[string]domain.CondensedBlock)}
}

func (s *memCondensedStore) Get(ctx context.Context, userID, symbol string) (domain.CondensedBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.totals[lkey(userID, symbol)]
	if !ok {
		return domain.CondensedBlock{}, domain.ErrNotFound
	}
	return cb, nil
}

func (s *memCondensedStore) AddProfit(ctx context.Context, userID, symbol string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb := s.totals[lkey(userID, symbol)]
	cb.UserID = userID
	cb.Symbol = symbol
	cb.Profit += delta
	cb.LastUpdated = time.Now().UTC()
	s.totals[lkey(userID, symbol)] = cb
	return nil
}

type memAccountStore struct {
	accounts map[string]domain.Account
}

func (s *memAccountStore) Upsert(ctx context.Context, a domain.Account) error {
	s.accounts[a.UserID] = a
	return nil
}

func (s *memAccountStore) Get(ctx context.Context, userID string) (domain.Account, error) {
	a, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *memAccountStore) List(ctx context.Context) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, nil
}

type memSymbolStore struct {
	mu      sync.Mutex
	symbols map[string]domain.Symbol
}

func newMemSymbolStore() *memSymbolStore {
	return &memSymbolStore{symbols: make(map[string]domain.Symbol)}
}

func (s *memSymbolStore) Upsert(ctx context.Context, sym domain.Symbol) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[sym.Name] = sym
	return nil
}

func (s *memSymbolStore) Get(ctx context.Context, name string) (domain.Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, ok := s.symbols[name]
	if !ok {
		return domain.Symbol{}, domain.ErrNotFound
	}
	return sym, nil
}

func (s *memSymbolStore) SetTrading(ctx context.Context, name string, trading bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym := s.symbols[name]
	sym.Name = name
	sym.Trading = trading
	sym.UpdatedAt = time.Now().UTC()
	s.symbols[name] = sym
	return nil
}

func (s *memSymbolStore) List(ctx context.Context) ([]domain.Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Symbol
	for _, sym := range s.symbols {
		out = append(out, sym)
	}
	return out, nil
}

// fakeBroker records placements and serves canned data.
type fakeBroker struct {
	mu sync.Mutex

	price     float64
	priceErr  error
	positions []domain.Position
	orders    []domain.OpenOrder

	nextID int

	brackets      []domain.BracketOrderRequest
	stopLimits    []domain.StopLimitBracketOrderRequest
	ocos          []domain.OCORequest
	trailingStops []domain.TrailingStopRequest
	cancelled     []string

	closeResult domain.FillResult
	closeErr    error

	// ordersAfterCancel, when set, replaces orders once CancelOrder has been
	// called at least once (simulates the broker clearing the book).
	ordersAfterCancel *[]domain.OpenOrder
}

func (f *fakeBroker) id() string {
	f.nextID++
	return fmt.Sprintf("ord-%d", f.nextID)
}

func (f *fakeBroker) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, f.priceErr
}

func (f *fakeBroker) GetPreviousClose(ctx context.Context, symbol string) (float64, error) {
	return f.GetCurrentPrice(ctx, symbol)
}

func (f *fakeBroker) GetOpenPositions(ctx context.Context, userID string) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions, nil
}

func (f *fakeBroker) GetOpenOrders(ctx context.Context, userID string) ([]domain.OpenOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders, nil
}

func (f *fakeBroker) PlaceBracketOrder(ctx context.Context, req domain.BracketOrderRequest) (domain.BracketIDs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brackets = append(f.brackets, req)
	return domain.BracketIDs{ParentID: f.id(), TakeProfitID: f.id(), StopLossID: f.id()}, nil
}

func (f *fakeBroker) PlaceStopLimitBracketOrder(ctx context.Context, req domain.StopLimitBracketOrderRequest) (domain.BracketIDs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLimits = append(f.stopLimits, req)
	return domain.BracketIDs{ParentID: f.id(), TakeProfitID: f.id(), StopLossID: f.id()}, nil
}

func (f *fakeBroker) PlaceOneCancelsOtherOrder(ctx context.Context, req domain.OCORequest) (domain.BracketIDs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ocos = append(f.ocos, req)
	tp := f.id()
	return domain.BracketIDs{ParentID: tp, TakeProfitID: tp, StopLossID: f.id()}, nil
}

func (f *fakeBroker) PlaceTrailingStopOrder(ctx context.Context, req domain.TrailingStopRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trailingStops = append(f.trailingStops, req)
	return f.id(), nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	if f.ordersAfterCancel != nil {
		f.orders = *f.ordersAfterCancel
	}
	return nil
}

func (f *fakeBroker) ClosePosition(ctx context.Context, symbol string) (domain.FillResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeResult, f.closeErr
}

// fakeBus records published payloads per channel.
type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][][]byte)}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() { <-ctx.Done(); close(ch) }()
	return ch, nil
}

func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return b.Publish(ctx, stream, payload)
}

func (b *fakeBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// fakeLocks always grants the lock.
type fakeLocks struct{}

func (fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return func() {}, nil
}

var quietRetry = RetryPolicy{Attempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
