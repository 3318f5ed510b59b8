package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/KyberNetwork/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/crosschain-ops/keymaster"
	redislock "github.com/crosschain-ops/keymaster/persistence/redis"
)

var flagYes bool

var topUpCmd = &cobra.Command{
	Use:     "top_up",
	Aliases: []string{"topup", "top-up"},
	Short:   "Top up underfunded wallets from each chain's bank account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if topology.Lock != nil {
			release, err := acquireBankLocks(ctx)
			if err != nil {
				return err
			}
			defer release()
		}

		orch := keymaster.NewOrchestrator(topology)

		confirm := confirmOnStdin
		if flagYes {
			confirm = func(summaries []keymaster.ChainSummary) bool {
				printSummaries(summaries)
				return true
			}
		}

		plan, report, err := orch.Run(ctx, confirm)
		if err != nil {
			return err
		}
		printReport(os.Stdout, plan, report)
		return nil
	},
}

func init() {
	topUpCmd.Flags().BoolVar(&flagYes, "yes", false, "dispatch without asking for confirmation")
}

// acquireBankLocks takes the Redis lock for every chain's bank so two top-up
// runs can't race each other on nonces. All locks are taken up front; holding
// a partial set while another run holds the rest would deadlock both.
func acquireBankLocks(ctx context.Context) (func(), error) {
	client := redis.NewClient(&redis.Options{Addr: topology.Lock.RedisAddr})

	opts := []redislock.BankLockOption{redislock.WithBankLockTTL(topology.Lock.TTL)}
	if topology.Lock.KeyPrefix != "" {
		opts = append(opts, redislock.WithBankLockKeyPrefix(topology.Lock.KeyPrefix))
	}
	lock := redislock.NewBankLock(client, opts...)

	var held []string
	release := func() {
		for _, name := range held {
			chain := topology.Chains[name]
			if err := lock.Release(context.Background(), name, chain.BankAddress); err != nil {
				logger.Warnf("Couldn't release bank lock for %s: %v", name, err)
			}
		}
		_ = client.Close()
	}

	for _, name := range sortedChainNames() {
		chain := topology.Chains[name]
		if err := lock.Acquire(ctx, name, chain.BankAddress); err != nil {
			release()
			return nil, fmt.Errorf("couldn't lock bank on %s: %w", name, err)
		}
		held = append(held, name)
	}
	return release, nil
}

func sortedChainNames() []string {
	names := make([]string, 0, len(topology.Chains))
	for name := range topology.Chains {
		names = append(names, name)
	}
	// Deterministic acquisition order keeps concurrent runs from deadlocking
	// on interleaved partial lock sets.
	sort.Strings(names)
	return names
}

func confirmOnStdin(summaries []keymaster.ChainSummary) bool {
	printSummaries(summaries)
	fmt.Print("Dispatch these transactions? [y/N]: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printSummaries(summaries []keymaster.ChainSummary) {
	for _, s := range summaries {
		bank := "unknown"
		if s.BankWei != nil {
			bank = s.BankWei.String()
		}
		fmt.Printf("%s: %d transaction(s), %s wei total, bank %s has %s wei\n",
			s.Chain, s.Count, s.TotalWei.String(), s.BankAddress.Hex(), bank)
	}
}

// printReport covers every configured chain: dispatched counts for queued
// chains, "no action" for satisfied ones, the failure for abandoned ones.
func printReport(w io.Writer, plan *keymaster.Plan, report *keymaster.Report) {
	if report.Declined {
		fmt.Fprintln(w, "Declined, nothing dispatched.")
		return
	}

	chains := make([]string, 0, len(plan.Queues))
	for chain := range plan.Queues {
		chains = append(chains, chain)
	}
	sort.Strings(chains)

	for _, chain := range chains {
		if err, abandoned := plan.ChainErrors[chain]; abandoned {
			fmt.Fprintf(w, "%s: abandoned (%v)\n", chain, err)
			continue
		}
		queue := plan.Queues[chain]
		if len(queue) == 0 {
			fmt.Fprintf(w, "%s: no action\n", chain)
			continue
		}
		sent, failed := 0, 0
		for _, result := range report.Results[chain] {
			if result.Err != nil {
				failed++
			} else {
				sent++
			}
		}
		fmt.Fprintf(w, "%s: %d dispatched, %d failed\n", chain, sent, failed)
	}

	for _, failure := range plan.TargetErrors {
		fmt.Fprintf(w, "%s/%s on %s: skipped (%v)\n", failure.Home, failure.Role, failure.Chain, failure.Err)
	}
}
