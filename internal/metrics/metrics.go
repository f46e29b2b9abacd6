// Package metrics exposes steward activity as Prometheus collectors.
package metrics

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "daysteward"

// Sale kinds.
const (
	SaleMint    = "mint"
	SaleReclaim = "reclaim"
	SaleForced  = "forced"
	SaleLegacy  = "legacy"
)

// Metrics holds the steward's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	taxCollected  prometheus.Counter
	foreclosures  prometheus.Counter
	sales         *prometheus.CounterVec
	payouts       *prometheus.CounterVec
	ownedParcels  prometheus.Gauge
	sweepDuration prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		taxCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tax_collected_ether_total",
			Help:      "Patronage tax moved from escrow deposits to the beneficiary pool, in ether.",
		}),
		foreclosures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "foreclosures_total",
			Help:      "Parcels foreclosed because their owner's deposit ran out.",
		}),
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Successful buy-or-mint operations by kind.",
		}, []string{"kind"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_total",
			Help:      "Released payouts by reason.",
		}, []string{"reason"}),
		ownedParcels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "owned_parcels",
			Help:      "Parcels held by an owner as of the last sweep.",
		}),
		sweepDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sweep_duration_seconds",
			Help:      "Wall time of the last patronage sweep.",
		}),
	}
	reg.MustRegister(m.taxCollected, m.foreclosures, m.sales, m.payouts, m.ownedParcels, m.sweepDuration)
	return m
}

var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// TaxCollected records wei moved into the beneficiary pool.
func (m *Metrics) TaxCollected(wei *big.Int) {
	if m == nil || wei == nil || wei.Sign() <= 0 {
		return
	}
	ether, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther).Float64()
	m.taxCollected.Add(ether)
}

func (m *Metrics) Foreclosure() {
	if m == nil {
		return
	}
	m.foreclosures.Inc()
}

func (m *Metrics) Sale(kind string) {
	if m == nil {
		return
	}
	m.sales.WithLabelValues(kind).Inc()
}

func (m *Metrics) Payout(reason string) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(reason).Inc()
}

func (m *Metrics) Sweep(owned int, took time.Duration) {
	if m == nil {
		return
	}
	m.ownedParcels.Set(float64(owned))
	m.sweepDuration.Set(took.Seconds())
}
