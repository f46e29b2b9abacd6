package services

import "errors"

// Steward errors. Every one of them is returned before any state changes
// become visible; the surrounding transaction is rolled back.
var (
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInsufficientPayment = errors.New("not enough")
	ErrInsufficientDeposit = errors.New("deposit below minimum")
	ErrWithdrawingTooMuch  = errors.New("withdrawing too much")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyMinted       = errors.New("day already minted")
	ErrLegacyTokenSet      = errors.New("legacy source already set for this migration")
	ErrLegacyUnavailable   = errors.New("legacy registry unavailable")
	ErrNotConfigured       = errors.New("steward settings not initialised")
)
