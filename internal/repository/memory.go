package repository

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/stwalsh4118/daysteward/internal/models"
	"github.com/stwalsh4118/daysteward/internal/money"
)

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("write in read-only transaction")

type memState struct {
	parcels  map[int]*models.Parcel
	tokens   map[int]*models.Token
	deposits map[string]*big.Int
	balances map[string]*big.Int
	settings *models.Settings
	payouts  []models.Payout
}

func newMemState() *memState {
	return &memState{
		parcels:  make(map[int]*models.Parcel),
		tokens:   make(map[int]*models.Token),
		deposits: make(map[string]*big.Int),
		balances: make(map[string]*big.Int),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for id, p := range s.parcels {
		c.parcels[id] = p.Clone()
	}
	for id, t := range s.tokens {
		tok := *t
		c.tokens[id] = &tok
	}
	for k, v := range s.deposits {
		c.deposits[k] = money.Copy(v)
	}
	for k, v := range s.balances {
		c.balances[k] = money.Copy(v)
	}
	if s.settings != nil {
		c.settings = s.settings.Clone()
	}
	c.payouts = append([]models.Payout(nil), s.payouts...)
	return c
}

// MemoryStore keeps the ledger in process memory. Each Update works on a
// copy of the state and swaps it in only when fn succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (m *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	if err := fn(&memTx{state: next}); err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{state: m.state, readOnly: true})
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close() error {
	return nil
}

type memTx struct {
	state    *memState
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *memTx) Parcel(_ context.Context, id int) (*models.Parcel, error) {
	p, ok := t.state.parcels[id]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (t *memTx) PutParcel(_ context.Context, p *models.Parcel) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.parcels[p.ID] = p.Clone()
	return nil
}

func (t *memTx) Token(_ context.Context, id int) (*models.Token, error) {
	tok, ok := t.state.tokens[id]
	if !ok {
		return nil, nil
	}
	c := *tok
	return &c, nil
}

func (t *memTx) PutToken(_ context.Context, tok *models.Token) error {
	if err := t.writable(); err != nil {
		return err
	}
	c := *tok
	t.state.tokens[tok.ID] = &c
	return nil
}

func (t *memTx) TokensOf(_ context.Context, owner string) ([]int, error) {
	ids := []int{}
	for id, tok := range t.state.tokens {
		if tok.Owner == owner {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (t *memTx) HeldTokens(_ context.Context, exclude string) ([]int, error) {
	ids := []int{}
	for id, tok := range t.state.tokens {
		if tok.Owner != exclude {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (t *memTx) Deposit(_ context.Context, owner string) (*big.Int, error) {
	return money.Copy(t.state.deposits[owner]), nil
}

func (t *memTx) PutDeposit(_ context.Context, owner string, amount *big.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.deposits[owner] = money.Copy(amount)
	return nil
}

func (t *memTx) Balance(_ context.Context, name string) (*big.Int, error) {
	return money.Copy(t.state.balances[name]), nil
}

func (t *memTx) PutBalance(_ context.Context, name string, amount *big.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.balances[name] = money.Copy(amount)
	return nil
}

func (t *memTx) Settings(_ context.Context) (*models.Settings, error) {
	if t.state.settings == nil {
		return nil, ErrNotFound
	}
	return t.state.settings.Clone(), nil
}

func (t *memTx) PutSettings(_ context.Context, s *models.Settings) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.settings = s.Clone()
	return nil
}

func (t *memTx) AddPayout(_ context.Context, p *models.Payout) error {
	if err := t.writable(); err != nil {
		return err
	}
	c := *p
	c.Amount = money.Copy(p.Amount)
	t.state.payouts = append(t.state.payouts, c)
	return nil
}

func (t *memTx) Payouts(_ context.Context) ([]models.Payout, error) {
	out := make([]models.Payout, len(t.state.payouts))
	for i, p := range t.state.payouts {
		out[i] = p
		out[i].Amount = money.Copy(p.Amount)
	}
	return out, nil
}
