package services

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/stwalsh4118/daysteward/internal/models"
	"github.com/stwalsh4118/daysteward/internal/money"
	"github.com/stwalsh4118/daysteward/internal/registry"
	"github.com/stwalsh4118/daysteward/internal/repository"
)

// Year is the accrual period the tax rate refers to.
const Year = 365 * 24 * time.Hour

// Collection describes the effect of one Collect call.
type Collection struct {
	Parcel *models.Parcel
	// Collected is the amount moved from the owner's deposit to the pool.
	Collected *big.Int
	// Owner is the holder the tax was charged to; empty if nothing accrued.
	Owner string
	// Foreclosed is set when this call foreclosed the parcel.
	Foreclosed bool
}

// PatronageLedger computes and settles patronage tax.
type PatronageLedger struct{}

// NewPatronageLedger creates a ledger.
func NewPatronageLedger() *PatronageLedger {
	return &PatronageLedger{}
}

// Owed is the tax accrued on p between its last collection and now:
// price * rate * elapsed / Year. The product is formed before the division
// and time is counted in nanoseconds, so short intervals on small prices
// still accrue a non-zero amount of wei. A now earlier than the last
// collection accrues nothing.
func (l *PatronageLedger) Owed(p *models.Parcel, s *models.Settings, now time.Time) *big.Int {
	if !p.Minted || p.Foreclosed || p.Price.Sign() == 0 || s.TaxNumerator == 0 {
		return money.Zero()
	}
	elapsed := now.Sub(p.LastCollected)
	if elapsed <= 0 {
		return money.Zero()
	}

	owed := new(big.Int).Mul(p.Price, big.NewInt(s.TaxNumerator))
	owed.Mul(owed, big.NewInt(elapsed.Nanoseconds()))

	denom := new(big.Int).Mul(big.NewInt(s.TaxDenominator), big.NewInt(Year.Nanoseconds()))
	return owed.Quo(owed, denom)
}

// Foreclosed reports the stored foreclosure flag. Unminted parcels are not
// foreclosed.
func (l *PatronageLedger) Foreclosed(p *models.Parcel) bool {
	return p != nil && p.Minted && p.Foreclosed
}

// Load returns the record for id, or a fresh unminted record.
func (l *PatronageLedger) Load(ctx context.Context, tx repository.Tx, id, month, day int) (*models.Parcel, error) {
	p, err := tx.Parcel(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = models.NewParcel(id, month, day)
	}
	return p, nil
}

// Collect settles the tax owed on parcel id up to now against its owner's
// deposit. The collected amount goes to the beneficiary pool. If the deposit
// cannot cover what is owed, whatever is left is taken and the parcel is
// foreclosed: the token goes back to the steward and the price drops to zero.
// Calling Collect again with the same now collects nothing.
func (l *PatronageLedger) Collect(ctx context.Context, tx repository.Tx, s *models.Settings, id, month, day int, now time.Time) (*Collection, error) {
	p, err := l.Load(ctx, tx, id, month, day)
	if err != nil {
		return nil, err
	}
	c := &Collection{Parcel: p, Collected: money.Zero()}
	if !p.Minted || p.Foreclosed {
		return c, nil
	}

	reg := registry.New(tx)
	owner, err := reg.OwnerOf(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read owner of %d: %w", id, err)
	}
	c.Owner = owner

	owed := l.Owed(p, s, now)
	if now.After(p.LastCollected) {
		p.LastCollected = now
	}

	if owed.Sign() > 0 {
		deposit, err := tx.Deposit(ctx, owner)
		if err != nil {
			return nil, err
		}
		c.Collected = money.Min(owed, deposit)
		if err := tx.PutDeposit(ctx, owner, money.Sub(deposit, c.Collected)); err != nil {
			return nil, err
		}

		pool, err := tx.Balance(ctx, repository.BalanceBeneficiary)
		if err != nil {
			return nil, err
		}
		if err := tx.PutBalance(ctx, repository.BalanceBeneficiary, money.Add(pool, c.Collected)); err != nil {
			return nil, err
		}

		if owed.Cmp(deposit) > 0 {
			if err := reg.Transfer(ctx, owner, registry.StewardHolder, id); err != nil {
				return nil, fmt.Errorf("failed to foreclose %d: %w", id, err)
			}
			p.Foreclosed = true
			p.Price = money.Zero()
			c.Foreclosed = true
		}
	}

	if err := tx.PutParcel(ctx, p); err != nil {
		return nil, err
	}
	return c, nil
}
