package repository

import (
	"context"
	"errors"
	"math/big"

	"github.com/stwalsh4118/daysteward/internal/models"
)

// ErrNotFound is returned by lookups that have no row to return where a
// missing row is not a valid state, such as settings before seeding.
var ErrNotFound = errors.New("not found")

// Store is the durable ledger behind the steward.
// Update runs fn in a transaction that is serialised against every other
// Update; if fn returns an error nothing it wrote is kept.
type Store interface {
	// Update runs fn in a read-write transaction.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction. Writes inside fn are an error
	// for the SQL backends and are discarded by the memory backend.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// Tx is the set of reads and writes available inside a transaction.
// Amounts returned are copies that the caller may mutate.
type Tx interface {
	// Parcel returns the patronage record for id, or nil, nil if the day was
	// never touched.
	Parcel(ctx context.Context, id int) (*models.Parcel, error)
	PutParcel(ctx context.Context, p *models.Parcel) error

	// Token returns the registry record for id, or nil, nil if it was never
	// minted.
	Token(ctx context.Context, id int) (*models.Token, error)
	PutToken(ctx context.Context, t *models.Token) error
	// TokensOf lists the ids held by owner in ascending order.
	TokensOf(ctx context.Context, owner string) ([]int, error)
	// HeldTokens lists every id whose holder is not the excluded address.
	HeldTokens(ctx context.Context, exclude string) ([]int, error)

	// Deposit returns the escrow balance of owner, zero if no account exists.
	Deposit(ctx context.Context, owner string) (*big.Int, error)
	PutDeposit(ctx context.Context, owner string, amount *big.Int) error

	// Balance returns a named steward-wide balance, zero if unset.
	Balance(ctx context.Context, name string) (*big.Int, error)
	PutBalance(ctx context.Context, name string, amount *big.Int) error

	// Settings returns ErrNotFound before the first PutSettings.
	Settings(ctx context.Context) (*models.Settings, error)
	PutSettings(ctx context.Context, s *models.Settings) error

	AddPayout(ctx context.Context, p *models.Payout) error
	// Payouts lists recorded payouts, newest last.
	Payouts(ctx context.Context) ([]models.Payout, error)
}

// Steward-wide balance names.
const (
	BalanceBeneficiary = "beneficiary"
	BalanceProceeds    = "proceeds"
)
