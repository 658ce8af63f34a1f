// Package metrics exposes engine activity as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
)

const namespace = "perpbook"

// Metrics holds the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	orders       *prometheus.CounterVec
	trades       *prometheus.CounterVec
	tradedSize   *prometheus.CounterVec
	liquidations *prometheus.CounterVec
	markPrice    *prometheus.GaugeVec
	fundingRate  *prometheus.GaugeVec
	books        prometheus.Gauge
}

// New registers the engine collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "total",
			Help:      "Orders submitted, by instrument and result",
		}, []string{"instrument", "result"}),
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "total",
			Help:      "Trades executed",
		}, []string{"instrument"}),
		tradedSize: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "size_total",
			Help:      "Total traded size in contracts",
		}, []string{"instrument"}),
		liquidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "liquidations_total",
			Help:      "Positions removed by liquidation",
		}, []string{"instrument"}),
		markPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "mark_price",
			Help:      "Current mark price",
		}, []string{"instrument"}),
		fundingRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "funding_rate",
			Help:      "Funding rate set by the last funding tick",
		}, []string{"instrument"}),
		books: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "books",
			Help:      "Number of registered books",
		}),
	}
}

// OrderResult counts one submitted order. result is "accepted" or an error class.
func (m *Metrics) OrderResult(inst ids.InstrumentID, result string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(inst.String(), result).Inc()
}

func (m *Metrics) Fill(inst ids.InstrumentID, size decimal.Decimal) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(inst.String()).Inc()
	m.tradedSize.WithLabelValues(inst.String()).Add(size.InexactFloat64())
}

func (m *Metrics) Liquidated(inst ids.InstrumentID, n int) {
	if m == nil || n == 0 {
		return
	}
	m.liquidations.WithLabelValues(inst.String()).Add(float64(n))
}

func (m *Metrics) SetMarkPrice(inst ids.InstrumentID, p decimal.Decimal) {
	if m == nil {
		return
	}
	m.markPrice.WithLabelValues(inst.String()).Set(p.InexactFloat64())
}

func (m *Metrics) SetFundingRate(inst ids.InstrumentID, r decimal.Decimal) {
	if m == nil {
		return
	}
	m.fundingRate.WithLabelValues(inst.String()).Set(r.InexactFloat64())
}

func (m *Metrics) SetBooks(n int) {
	if m == nil {
		return
	}
	m.books.Set(float64(n))
}
