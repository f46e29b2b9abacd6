package services

import (
	"context"

	"github.com/stwalsh4118/daysteward/internal/logger"
	"github.com/stwalsh4118/daysteward/internal/models"
	"github.com/stwalsh4118/daysteward/internal/money"
)

// Disburser releases committed payouts to their recipients.
// Disburse is only called after the transaction recording p has committed,
// so a recipient never observes a payout the ledger could still roll back.
type Disburser interface {
	Disburse(ctx context.Context, p models.Payout) error
}

// LogDisburser records payouts in the service log. The payouts table is the
// settlement record an operator or settlement job pays from.
type LogDisburser struct {
	log *logger.Logger
}

// NewLogDisburser creates a disburser that logs to log.
func NewLogDisburser(log *logger.Logger) *LogDisburser {
	return &LogDisburser{log: log}
}

func (d *LogDisburser) Disburse(_ context.Context, p models.Payout) error {
	d.log.Info("Payout released", map[string]interface{}{
		"payout_id": p.ID,
		"to":        p.To,
		"amount":    money.FormatEther(p.Amount),
		"reason":    p.Reason,
	})
	return nil
}
