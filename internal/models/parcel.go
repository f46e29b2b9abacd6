package models

import (
	"math/big"
	"time"

	"github.com/stwalsh4118/daysteward/internal/money"
)

// Parcel is the patronage record for one calendar day.
// A parcel is unminted, owned, or foreclosed; Minted and Foreclosed together
// with the registry owner decide which.
type Parcel struct {
	LastCollected time.Time `json:"lastCollected"`
	Price         *big.Int  `json:"-"`
	ID            int       `json:"id"`
	Month         int       `json:"month"`
	Day           int       `json:"day"`
	Minted        bool      `json:"minted"`
	Foreclosed    bool      `json:"foreclosed"`
}

// NewParcel returns the unminted record for a day.
func NewParcel(id, month, day int) *Parcel {
	return &Parcel{
		ID:    id,
		Month: month,
		Day:   day,
		Price: money.Zero(),
	}
}

// Clone returns a deep copy.
func (p *Parcel) Clone() *Parcel {
	c := *p
	c.Price = money.Copy(p.Price)
	return &c
}

// Token is the registry's view of a parcel: who holds it and what it is called.
type Token struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
	ID    int    `json:"id"`
}

// Settings is the persisted steward configuration.
// The tax rate is TaxNumerator/TaxDenominator of the price per year.
type Settings struct {
	MintPrice      *big.Int
	MinDeposit     *big.Int
	Admin          string
	Beneficiary    string
	LegacyToken    string
	// LegacyEpoch counts closed legacy migrations. Clearing LegacyToken
	// closes the current one and lets the admin set a new source.
	LegacyEpoch    int64
	TaxNumerator   int64
	TaxDenominator int64
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.MintPrice = money.Copy(s.MintPrice)
	c.MinDeposit = money.Copy(s.MinDeposit)
	return &c
}

// Payout reasons.
const (
	PayoutSale        = "sale"
	PayoutWithdrawal  = "withdrawal"
	PayoutBeneficiary = "beneficiary"
	PayoutProceeds    = "proceeds"
)

// Payout is a value transfer out of the steward. Payouts are recorded in the
// same transaction as the ledger change that causes them and released only
// after that transaction commits.
type Payout struct {
	CreatedAt time.Time `json:"createdAt"`
	Amount    *big.Int  `json:"-"`
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Reason    string    `json:"reason"`
}

// ParcelView joins ledger and registry state for read endpoints.
type ParcelView struct {
	Parcel
	Owner        string
	Name         string
	ProjectedTax *big.Int
	Owned        bool
}
