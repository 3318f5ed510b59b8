package keymaster

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gauges exported by monitor mode. Values are re-set every
// poll cycle; history lives in the scrape sink, not in-process.
type Metrics struct {
	WalletBalance    *prometheus.GaugeVec
	TransactionCount *prometheus.GaugeVec
	BlockHeight      *prometheus.GaugeVec
}

// NewMetrics registers the monitor gauges on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WalletBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ethereum_wallet_balance",
			Help: "Wallet balance in wei",
		}, []string{"role", "home", "address", "network"}),
		TransactionCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ethereum_transaction_count",
			Help: "Wallet transaction count",
		}, []string{"role", "home", "address", "network"}),
		BlockHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ethereum_block_height",
			Help: "Block height",
		}, []string{"network"}),
	}
	reg.MustRegister(m.WalletBalance, m.TransactionCount, m.BlockHeight)
	return m
}

// weiToFloat renders a wei amount as a gauge value. Precision loss above
// 2^53 wei is inherent to the exposition format.
func weiToFloat(wei *big.Int) float64 {
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f
}
