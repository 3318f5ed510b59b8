package keymaster

import (
	"context"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-co-op/gocron"

	"github.com/crosschain-ops/keymaster/config"
)

// Monitor polls every configured chain and monitored address on a schedule
// and exports balances, transaction counts and block heights as gauges.
//
// Each fetch is independent and fails soft: one unreachable endpoint must
// not block monitoring of the other chains, so failures are logged and the
// cycle moves on.
type Monitor struct {
	topology      *config.Topology
	metrics       *Metrics
	readerFactory ReaderFactory
	interval      time.Duration

	readers map[string]ChainReader
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorReaderFactory sets a custom reader factory for testing or
// alternative implementations.
func WithMonitorReaderFactory(factory ReaderFactory) MonitorOption {
	return func(m *Monitor) {
		m.readerFactory = factory
	}
}

// NewMonitor creates a Monitor polling every interval.
func NewMonitor(topology *config.Topology, metrics *Metrics, interval time.Duration, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		topology: topology,
		metrics:  metrics,
		interval: interval,
		readers:  map[string]ChainReader{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.readerFactory == nil {
		m.readerFactory = DefaultReaderFactory
	}
	return m
}

// Run schedules poll cycles until ctx is cancelled. The first cycle runs
// immediately; subsequent cycles run every interval with no jitter. The job
// runs in singleton mode: a cycle slowed down by retrying dead endpoints must
// finish before the next one starts, since cycles share the reader map.
func (m *Monitor) Run(ctx context.Context) error {
	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(m.interval).StartImmediately().SingletonMode().Do(func() {
		m.Cycle(ctx)
	})
	if err != nil {
		return err
	}

	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	return ctx.Err()
}

// Cycle runs one poll pass over the whole topology.
func (m *Monitor) Cycle(ctx context.Context) {
	for _, name := range sortedKeys(m.topology.Chains) {
		m.pollBlockHeight(ctx, m.topology.Chains[name])
	}

	for _, homeName := range sortedKeys(m.topology.Homes) {
		home := m.topology.Homes[homeName]
		targets := append([]string{home.Chain}, home.Replicas...)
		for _, role := range sortedKeys(home.Addresses) {
			addr := home.Addresses[role]
			for _, chainName := range targets {
				m.pollWallet(ctx, homeName, role, m.topology.Chains[chainName], addr)
			}
		}
	}
}

func (m *Monitor) reader(chain *config.Chain) (ChainReader, error) {
	if r, ok := m.readers[chain.Name]; ok {
		return r, nil
	}
	r, err := m.readerFactory(chain.Endpoint)
	if err != nil {
		return nil, err
	}
	m.readers[chain.Name] = r
	return r, nil
}

func (m *Monitor) pollBlockHeight(ctx context.Context, chain *config.Chain) {
	reader, err := m.reader(chain)
	if err != nil {
		logger.WithFields(logger.Fields{"network": chain.Name, "error": err}).Warn("Couldn't init reader, skipping network this cycle")
		return
	}
	height, err := reader.GetBlockHeight(ctx)
	if err != nil {
		logger.WithFields(logger.Fields{"network": chain.Name, "error": err}).Warn("Couldn't fetch block height")
		return
	}
	m.metrics.BlockHeight.WithLabelValues(chain.Name).Set(float64(height))
}

func (m *Monitor) pollWallet(ctx context.Context, homeName, role string, chain *config.Chain, addr common.Address) {
	log := logger.WithFields(logger.Fields{
		"home":    homeName,
		"role":    role,
		"network": chain.Name,
		"address": addr.Hex(),
	})
	log.Info("Fetching wallet metrics")

	reader, err := m.reader(chain)
	if err != nil {
		log.WithFields(logger.Fields{"error": err}).Warn("Couldn't init reader, skipping address this cycle")
		return
	}

	labels := []string{role, homeName, addr.Hex(), chain.Name}

	if balance, err := reader.GetBalance(ctx, addr); err != nil {
		log.WithFields(logger.Fields{"error": err}).Warn("Couldn't fetch balance")
	} else {
		m.metrics.WalletBalance.WithLabelValues(labels...).Set(weiToFloat(balance))
	}

	if nonce, err := reader.GetNonce(ctx, addr); err != nil {
		log.WithFields(logger.Fields{"error": err}).Warn("Couldn't fetch transaction count")
	} else {
		m.metrics.TransactionCount.WithLabelValues(labels...).Set(float64(nonce))
	}
}
