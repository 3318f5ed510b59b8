package keymaster

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"

	"github.com/crosschain-ops/keymaster/config"
)

// Orchestrator runs top-up passes over a topology. It walks every home and
// its replicas, evaluates each monitored address against the chain's
// watermarks, accumulates one nonce-sequenced queue of signed transactions
// per chain, and dispatches the queues after a single operator confirmation.
//
// The bank signing key of a chain is used sequentially and exclusively
// within one run: nonces are computed from on-chain state read once per
// chain, so two concurrent runs against the same bank would collide. Do not
// run two top-up jobs concurrently against the same bank.
type Orchestrator struct {
	topology           *config.Topology
	readerFactory      ReaderFactory
	broadcasterFactory BroadcasterFactory
	dispatchDelay      time.Duration

	// Lazily dialed per chain, keyed by chain name.
	readers      map[string]ChainReader
	broadcasters map[string]ChainBroadcaster
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithReaderFactory sets a custom reader factory for testing or alternative
// implementations.
func WithReaderFactory(factory ReaderFactory) OrchestratorOption {
	return func(o *Orchestrator) {
		o.readerFactory = factory
	}
}

// WithBroadcasterFactory sets a custom broadcaster factory for testing or
// alternative implementations.
func WithBroadcasterFactory(factory BroadcasterFactory) OrchestratorOption {
	return func(o *Orchestrator) {
		o.broadcasterFactory = factory
	}
}

// WithDispatchDelay sets the pause between consecutive dispatches on one
// chain.
func WithDispatchDelay(delay time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.dispatchDelay = delay
	}
}

// NewOrchestrator creates an Orchestrator over topology.
func NewOrchestrator(topology *config.Topology, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		topology:      topology,
		dispatchDelay: DefaultDispatchDelay,
		readers:       map[string]ChainReader{},
		broadcasters:  map[string]ChainBroadcaster{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.readerFactory == nil {
		o.readerFactory = DefaultReaderFactory
	}
	if o.broadcasterFactory == nil {
		o.broadcasterFactory = DefaultBroadcasterFactory
	}
	return o
}

func (o *Orchestrator) reader(chain *config.Chain) (ChainReader, error) {
	if r, ok := o.readers[chain.Name]; ok {
		return r, nil
	}
	r, err := o.readerFactory(chain.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: couldn't init reader for %s: %v", ErrChainUnavailable, chain.Name, err)
	}
	o.readers[chain.Name] = r
	return r, nil
}

func (o *Orchestrator) broadcaster(chain *config.Chain) (ChainBroadcaster, error) {
	if b, ok := o.broadcasters[chain.Name]; ok {
		return b, nil
	}
	b, err := o.broadcasterFactory(chain.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: couldn't init broadcaster for %s: %v", ErrChainUnavailable, chain.Name, err)
	}
	o.broadcasters[chain.Name] = b
	return b, nil
}

// BuildPlan performs the planning pass: every (home, role, address) pair is
// evaluated on the home's own chain and independently on each of its
// replicas, since every chain has its own balance, threshold and bank.
//
// The nonce of each queued transaction is the bank's on-chain nonce (read
// once per chain per run) plus the queue length at enqueue time, so several
// top-ups queued for the same bank never collide on nonce.
//
// Failures are isolated: an address whose balance can't be read is skipped
// and recorded; a chain whose bank nonce can't be read is marked failed and
// all remaining work for it is abandoned, while every other chain proceeds.
func (o *Orchestrator) BuildPlan(ctx context.Context) *Plan {
	plan := &Plan{
		Queues:      make(map[string][]*PendingTx, len(o.topology.Chains)),
		ChainErrors: map[string]error{},
	}
	for name := range o.topology.Chains {
		plan.Queues[name] = nil
	}

	// Base nonce per chain, read once when the chain's first top-up is
	// enqueued.
	baseNonces := map[string]uint64{}

	for _, homeName := range sortedKeys(o.topology.Homes) {
		home := o.topology.Homes[homeName]
		targets := append([]string{home.Chain}, home.Replicas...)

		for _, role := range sortedKeys(home.Addresses) {
			addr := home.Addresses[role]
			for _, chainName := range targets {
				o.planTarget(ctx, plan, baseNonces, homeName, chainName, role, addr)
			}
		}
	}

	return plan
}

func (o *Orchestrator) planTarget(
	ctx context.Context,
	plan *Plan,
	baseNonces map[string]uint64,
	homeName, chainName, role string,
	addr common.Address,
) {
	if _, failed := plan.ChainErrors[chainName]; failed {
		return
	}
	chain := o.topology.Chains[chainName]

	log := logger.WithFields(logger.Fields{
		"home":    homeName,
		"network": chainName,
		"role":    role,
		"address": addr.Hex(),
	})
	log.Info("Evaluating balance against threshold")

	reader, err := o.reader(chain)
	if err != nil {
		plan.ChainErrors[chainName] = err
		log.WithFields(logger.Fields{"error": err}).Error("Chain unavailable, abandoning it for this run")
		return
	}

	amount, err := EvaluateThreshold(ctx, reader, addr, chain.LowerBound, chain.UpperBound)
	if err != nil {
		plan.TargetErrors = append(plan.TargetErrors, TargetFailure{
			Home: homeName, Chain: chainName, Role: role, Address: addr, Err: err,
		})
		log.WithFields(logger.Fields{"error": err}).Error("Skipping address, evaluation failed")
		return
	}
	if amount == nil {
		log.Info("Balance is satisfactory, no action")
		return
	}

	base, ok := baseNonces[chainName]
	if !ok {
		base, err = reader.GetNonce(ctx, chain.BankAddress)
		if err != nil {
			plan.ChainErrors[chainName] = err
			plan.Queues[chainName] = nil
			log.WithFields(logger.Fields{"error": err}).Error("Couldn't read bank nonce, abandoning chain for this run")
			return
		}
		baseNonces[chainName] = base
	}

	nonce := base + uint64(len(plan.Queues[chainName]))
	ptx, err := BuildTopUp(ctx, reader, chain, addr, amount, nonce)
	if err != nil {
		plan.TargetErrors = append(plan.TargetErrors, TargetFailure{
			Home: homeName, Chain: chainName, Role: role, Address: addr, Err: err,
		})
		log.WithFields(logger.Fields{"error": err}).Error("Skipping address, couldn't build top-up")
		return
	}
	ptx.Home = homeName
	ptx.Role = role
	plan.Queues[chainName] = append(plan.Queues[chainName], ptx)

	log.WithFields(logger.Fields{
		"amount_wei": amount.String(),
		"nonce":      nonce,
	}).Info("Enqueued top-up")
}

// Summarize produces the pre-confirmation view of a plan: per non-empty
// queue, the transaction count, the total value, and the bank's current
// balance. A failed bank balance read leaves BankWei nil rather than
// blocking the summary.
func (o *Orchestrator) Summarize(ctx context.Context, plan *Plan) []ChainSummary {
	var summaries []ChainSummary
	for _, name := range plan.QueuedChains() {
		chain := o.topology.Chains[name]
		queue := plan.Queues[name]

		total := new(big.Int)
		for _, ptx := range queue {
			total.Add(total, ptx.Params.ValueWei)
		}

		summary := ChainSummary{
			Chain:       name,
			Count:       len(queue),
			TotalWei:    total,
			BankAddress: chain.BankAddress,
		}
		if reader, err := o.reader(chain); err == nil {
			if bank, err := reader.GetBalance(ctx, chain.BankAddress); err == nil {
				summary.BankWei = bank
			} else {
				logger.WithFields(logger.Fields{
					"network": name,
					"error":   err,
				}).Warn("Couldn't fetch bank balance for summary")
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// Run executes a full top-up pass: plan, summarize, confirm once globally,
// dispatch. A declined confirmation aborts the entire run with nothing
// dispatched on any chain; this is the expected operator control path, not
// an error.
func (o *Orchestrator) Run(ctx context.Context, confirm ConfirmFunc) (*Plan, *Report, error) {
	plan := o.BuildPlan(ctx)
	if err := ctx.Err(); err != nil {
		return plan, nil, err
	}

	report := &Report{Results: map[string][]DispatchResult{}}

	queued := plan.QueuedChains()
	if len(queued) == 0 {
		logger.Infof("No transactions to process on any network")
		return plan, report, nil
	}

	summaries := o.Summarize(ctx, plan)
	if !confirm(summaries) {
		logger.Infof("Operator declined, aborting run without dispatching")
		report.Declined = true
		return plan, report, nil
	}

	for _, name := range queued {
		if err := o.dispatchChain(ctx, name, plan.Queues[name], report); err != nil {
			return plan, report, err
		}
	}
	return plan, report, nil
}

// dispatchChain drains one chain's queue in append order, which is nonce
// order. Dispatch failures are logged and the drain continues best-effort,
// since each transaction is independent. Only context cancellation stops the
// drain.
func (o *Orchestrator) dispatchChain(ctx context.Context, name string, queue []*PendingTx, report *Report) error {
	chain := o.topology.Chains[name]
	logger.WithFields(logger.Fields{
		"network": name,
		"count":   len(queue),
	}).Info("Processing transactions")

	b, err := o.broadcaster(chain)
	if err != nil {
		for _, ptx := range queue {
			report.Results[name] = append(report.Results[name], DispatchResult{Tx: ptx, Err: err})
		}
		logger.WithFields(logger.Fields{
			"network": name,
			"error":   err,
		}).Error("Couldn't init broadcaster, queue not dispatched")
		return nil
	}

	for i, ptx := range queue {
		if i > 0 && o.dispatchDelay > 0 {
			timer := time.NewTimer(o.dispatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if audit, err := json.Marshal(ptx.Params); err == nil {
			logger.WithFields(logger.Fields{
				"network": name,
				"params":  string(audit),
			}).Info("Attempting to send transaction")
		}

		hash, err := b.SendRawTx(ctx, ptx.Signed)
		report.Results[name] = append(report.Results[name], DispatchResult{Tx: ptx, Hash: hash, Err: err})
		if err != nil {
			logger.WithFields(logger.Fields{
				"network": name,
				"nonce":   ptx.Params.Nonce,
				"error":   err,
			}).Error("Dispatch failed, continuing with remaining queue")
			continue
		}
		logger.WithFields(logger.Fields{
			"network": name,
			"nonce":   ptx.Params.Nonce,
			"tx_hash": hash.Hex(),
		}).Info("Dispatched transaction")
	}
	return nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
