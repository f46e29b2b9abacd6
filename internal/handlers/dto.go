package handlers

import (
	"math/big"
	"strings"
	"time"

	"github.com/stwalsh4118/daysteward/internal/models"
	"github.com/stwalsh4118/daysteward/internal/money"
)

// Amount is a money value in both wei and ether.
type Amount struct {
	Wei   string `json:"wei"`
	Ether string `json:"ether"`
}

func newAmount(wei *big.Int) Amount {
	wei = money.Copy(wei)
	return Amount{
		Wei:   wei.String(),
		Ether: money.FormatEther(wei),
	}
}

// ParcelResponse represents the response for parcel endpoints.
type ParcelResponse struct {
	Parcel *ParcelData `json:"parcel"`
}

// ParcelData is the public view of one calendar day.
type ParcelData struct {
	LastCollected *time.Time `json:"last_collected,omitempty"`
	Price         Amount     `json:"price"`
	ProjectedTax  Amount     `json:"projected_tax"`
	Owner         string     `json:"owner"`
	Name          string     `json:"name"`
	ID            int        `json:"id"`
	Month         int        `json:"month"`
	Day           int        `json:"day"`
	Minted        bool       `json:"minted"`
	Owned         bool       `json:"owned"`
	Foreclosed    bool       `json:"foreclosed"`
}

func mapParcelViewToDTO(v *models.ParcelView) *ParcelData {
	if v == nil {
		return nil
	}
	dto := &ParcelData{
		Price:        newAmount(v.Price),
		ProjectedTax: newAmount(v.ProjectedTax),
		Owner:        v.Owner,
		Name:         v.Name,
		ID:           v.ID,
		Month:        v.Month,
		Day:          v.Day,
		Minted:       v.Minted,
		Owned:        v.Owned,
		Foreclosed:   v.Foreclosed,
	}
	if v.Minted {
		lastCollected := v.LastCollected
		dto.LastCollected = &lastCollected
	}
	return dto
}

// CollectResponse is returned by the collect endpoint.
type CollectResponse struct {
	Parcel    *ParcelData `json:"parcel"`
	Collected Amount      `json:"collected"`
}

// ForeclosedResponse is returned by the foreclosed endpoint.
type ForeclosedResponse struct {
	ID         int  `json:"id"`
	Foreclosed bool `json:"foreclosed"`
}

// BalanceResponse reports an account balance.
type BalanceResponse struct {
	Address string `json:"address"`
	Amount  Amount `json:"amount"`
}

// PayoutResponse reports the amount paid out by a withdrawal.
type PayoutResponse struct {
	To        string  `json:"to"`
	Amount    Amount  `json:"amount"`
	Remaining *Amount `json:"remaining,omitempty"`
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
