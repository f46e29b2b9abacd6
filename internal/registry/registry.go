// Package registry is the unique-ownership ledger of calendar-day tokens.
// The steward is its only mutator: a Registry is bound to the steward's
// current store transaction, so ownership changes commit or roll back
// together with the patronage ledger.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/stwalsh4118/daysteward/internal/calendar"
	"github.com/stwalsh4118/daysteward/internal/models"
	"github.com/stwalsh4118/daysteward/internal/repository"
)

// StewardHolder holds every token that has no owner, such as a foreclosed day.
const StewardHolder = "0x0000000000000000000000000000000000000000"

var (
	// ErrNonexistentToken is returned for operations on tokens never minted.
	ErrNonexistentToken = errors.New("nonexistent token")
	// ErrAlreadyMinted is returned when minting a token that exists.
	ErrAlreadyMinted = errors.New("token already minted")
	// ErrNotOwner is returned when a transfer names the wrong current owner.
	ErrNotOwner = errors.New("transfer from incorrect owner")
	// ErrInvalidDay is returned for keys that are not calendar days.
	ErrInvalidDay = errors.New("invalid day")
)

// Registry tracks which day tokens exist and who holds them.
type Registry interface {
	Mint(ctx context.Context, owner string, id int) error
	Transfer(ctx context.Context, from, to string, id int) error
	Exists(ctx context.Context, id int) (bool, error)
	// OwnerOf returns the holder of id; StewardHolder when nobody owns it.
	OwnerOf(ctx context.Context, id int) (string, error)
	TokensOf(ctx context.Context, owner string) ([]int, error)
	SetDayName(ctx context.Context, month, day int, name string) error
	GetDayName(ctx context.Context, month, day int) (string, error)
	GetMintedDay(ctx context.Context, month, day int) (bool, error)
}

type txRegistry struct {
	tx repository.Tx
}

// New binds a registry to tx.
func New(tx repository.Tx) Registry {
	return &txRegistry{tx: tx}
}

func (r *txRegistry) token(ctx context.Context, id int) (*models.Token, error) {
	tok, err := r.tx.Token(ctx, id)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, fmt.Errorf("%w: %d", ErrNonexistentToken, id)
	}
	return tok, nil
}

func (r *txRegistry) Mint(ctx context.Context, owner string, id int) error {
	if _, _, err := calendar.SplitID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDay, err)
	}
	existing, err := r.tx.Token(ctx, id)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %d", ErrAlreadyMinted, id)
	}
	return r.tx.PutToken(ctx, &models.Token{ID: id, Owner: owner})
}

func (r *txRegistry) Transfer(ctx context.Context, from, to string, id int) error {
	tok, err := r.token(ctx, id)
	if err != nil {
		return err
	}
	if tok.Owner != from {
		return fmt.Errorf("%w: token %d is held by %s, not %s", ErrNotOwner, id, tok.Owner, from)
	}
	tok.Owner = to
	return r.tx.PutToken(ctx, tok)
}

func (r *txRegistry) Exists(ctx context.Context, id int) (bool, error) {
	tok, err := r.tx.Token(ctx, id)
	if err != nil {
		return false, err
	}
	return tok != nil, nil
}

func (r *txRegistry) OwnerOf(ctx context.Context, id int) (string, error) {
	tok, err := r.token(ctx, id)
	if err != nil {
		return "", err
	}
	return tok.Owner, nil
}

func (r *txRegistry) TokensOf(ctx context.Context, owner string) ([]int, error) {
	return r.tx.TokensOf(ctx, owner)
}

func (r *txRegistry) SetDayName(ctx context.Context, month, day int, name string) error {
	if !calendar.IsValidDate(month, day) {
		return fmt.Errorf("%w: %d/%d", ErrInvalidDay, month, day)
	}
	tok, err := r.token(ctx, calendar.DayID(month, day))
	if err != nil {
		return err
	}
	tok.Name = name
	return r.tx.PutToken(ctx, tok)
}

func (r *txRegistry) GetDayName(ctx context.Context, month, day int) (string, error) {
	if !calendar.IsValidDate(month, day) {
		return "", fmt.Errorf("%w: %d/%d", ErrInvalidDay, month, day)
	}
	tok, err := r.tx.Token(ctx, calendar.DayID(month, day))
	if err != nil || tok == nil {
		return "", err
	}
	return tok.Name, nil
}

func (r *txRegistry) GetMintedDay(ctx context.Context, month, day int) (bool, error) {
	if !calendar.IsValidDate(month, day) {
		return false, fmt.Errorf("%w: %d/%d", ErrInvalidDay, month, day)
	}
	return r.Exists(ctx, calendar.DayID(month, day))
}
