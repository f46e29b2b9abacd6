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

// EscrowAccounts holds owner deposits and the beneficiary pool.
type EscrowAccounts struct {
	ledger *PatronageLedger
}

// NewEscrowAccounts creates escrow accounts that project tax with ledger.
func NewEscrowAccounts(ledger *PatronageLedger) *EscrowAccounts {
	return &EscrowAccounts{ledger: ledger}
}

// Deposit adds amount to owner's deposit and returns the new balance.
func (e *EscrowAccounts) Deposit(ctx context.Context, tx repository.Tx, owner string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: deposit must be positive", ErrInvalidAmount)
	}
	current, err := tx.Deposit(ctx, owner)
	if err != nil {
		return nil, err
	}
	balance := money.Add(current, amount)
	if err := tx.PutDeposit(ctx, owner, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// Withdrawable is owner's deposit less the tax owed on every parcel they hold
// as of now, floored at zero. Nothing is collected.
func (e *EscrowAccounts) Withdrawable(ctx context.Context, tx repository.Tx, s *models.Settings, owner string, now time.Time) (*big.Int, error) {
	deposit, err := tx.Deposit(ctx, owner)
	if err != nil {
		return nil, err
	}
	if owner == registry.StewardHolder {
		return deposit, nil
	}

	ids, err := tx.TokensOf(ctx, owner)
	if err != nil {
		return nil, err
	}
	owed := money.Zero()
	for _, id := range ids {
		p, err := tx.Parcel(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		owed = money.Add(owed, e.ledger.Owed(p, s, now))
	}
	return money.SubFloor(deposit, owed), nil
}

// Withdraw debits amount from owner's deposit. Outstanding tax must already
// have been collected.
func (e *EscrowAccounts) Withdraw(ctx context.Context, tx repository.Tx, owner string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: withdrawal must be positive", ErrInvalidAmount)
	}
	deposit, err := tx.Deposit(ctx, owner)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(deposit) > 0 {
		return nil, fmt.Errorf("%w: requested %s, deposit is %s",
			ErrWithdrawingTooMuch, money.FormatEther(amount), money.FormatEther(deposit))
	}
	remaining := money.Sub(deposit, amount)
	if err := tx.PutDeposit(ctx, owner, remaining); err != nil {
		return nil, err
	}
	return remaining, nil
}

// Pool returns the beneficiary pool balance.
func (e *EscrowAccounts) Pool(ctx context.Context, tx repository.Tx) (*big.Int, error) {
	return tx.Balance(ctx, repository.BalanceBeneficiary)
}

// WithdrawBeneficiaryFunds empties the beneficiary pool and returns what it
// held. Only the configured beneficiary may call it.
func (e *EscrowAccounts) WithdrawBeneficiaryFunds(ctx context.Context, tx repository.Tx, s *models.Settings, caller string) (*big.Int, error) {
	if caller != s.Beneficiary {
		return nil, fmt.Errorf("%w: only the beneficiary can withdraw the pool", ErrUnauthorized)
	}
	return drain(ctx, tx, repository.BalanceBeneficiary)
}

// CreditProceeds adds amount to the proceeds balance.
func (e *EscrowAccounts) CreditProceeds(ctx context.Context, tx repository.Tx, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	current, err := tx.Balance(ctx, repository.BalanceProceeds)
	if err != nil {
		return err
	}
	return tx.PutBalance(ctx, repository.BalanceProceeds, money.Add(current, amount))
}

// WithdrawProceeds empties the proceeds balance. Only the admin may call it.
func (e *EscrowAccounts) WithdrawProceeds(ctx context.Context, tx repository.Tx, s *models.Settings, caller string) (*big.Int, error) {
	if caller != s.Admin {
		return nil, fmt.Errorf("%w: only the admin can withdraw proceeds", ErrUnauthorized)
	}
	return drain(ctx, tx, repository.BalanceProceeds)
}

func drain(ctx context.Context, tx repository.Tx, name string) (*big.Int, error) {
	amount, err := tx.Balance(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := tx.PutBalance(ctx, name, money.Zero()); err != nil {
		return nil, err
	}
	return amount, nil
}
