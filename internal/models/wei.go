package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/stwalsh4118/daysteward/internal/money"
)

// Wei is a non-negative amount of wei that can be read from and written to
// SQL columns. Both backends store amounts as base-10 text so that values
// wider than 64 bits survive the round trip.
type Wei struct {
	v *big.Int
}

// NewWei wraps a copy of v.
func NewWei(v *big.Int) Wei {
	return Wei{v: money.Copy(v)}
}

// Int returns a copy of the wrapped amount; the zero Wei is zero.
func (w Wei) Int() *big.Int {
	return money.Copy(w.v)
}

// Scan implements sql.Scanner. Drivers hand back NUMERIC and TEXT columns as
// string or []byte; small SQLite integers come back as int64.
func (w *Wei) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		w.v = money.Zero()
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("failed to scan Wei: negative value %d", v)
		}
		w.v = big.NewInt(v)
		return nil
	default:
		return fmt.Errorf("failed to scan Wei: unexpected type %T", value)
	}

	parsed, err := money.ParseWei(s)
	if err != nil {
		return fmt.Errorf("failed to scan Wei: %w", err)
	}
	w.v = parsed
	return nil
}

// Value implements driver.Valuer.
func (w Wei) Value() (driver.Value, error) {
	return w.Int().String(), nil
}

// MarshalJSON renders the amount as a quoted wei string.
func (w Wei) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Int().String())
}

// UnmarshalJSON accepts a quoted wei string.
func (w *Wei) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to unmarshal Wei: %w", err)
	}
	return w.Scan(s)
}
