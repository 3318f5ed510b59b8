// Package redis provides the Redis-based bank lock for keymaster top-up runs.
//
// A top-up run computes nonces from on-chain state read once per chain, so
// two runs dispatching against the same bank account at the same time would
// collide on nonce. BankLock makes that exclusion explicit across processes.
//
// # Basic Usage
//
//	import (
//	    "github.com/redis/go-redis/v9"
//	    redislock "github.com/crosschain-ops/keymaster/persistence/redis"
//	)
//
//	client := redis.NewClient(&redis.Options{
//	    Addr: "localhost:6379",
//	})
//
//	lock := redislock.NewBankLock(client)
//	if err := lock.Acquire(ctx, "ethereum", bankAddress); err != nil {
//	    // another run holds the bank, or Redis is unreachable
//	}
//	defer lock.Release(ctx, "ethereum", bankAddress)
//
// # Multi-Tenant Usage
//
// Use key prefixes to isolate deployments sharing the same Redis instance:
//
//	prodLock := redislock.NewBankLock(client, redislock.WithBankLockKeyPrefix("prod"))
//	stageLock := redislock.NewBankLock(client, redislock.WithBankLockKeyPrefix("stage"))
//
// # Redis Key Structure
//
//   - keymaster:banklock:{chain}:{bank} - lock token with TTL
//
// # Crash Safety
//
// Locks expire after the configured TTL (15 minutes by default), so a
// crashed run cannot wedge a bank forever. Release is token-checked with
// WATCH, so an expired lock that another run has since re-acquired is never
// deleted by the original holder.
//
// # Supported Redis Configurations
//
// Works with standalone Redis, Redis Sentinel and Redis Cluster. Pass the
// appropriate redis.UniversalClient implementation to NewBankLock.
package redis
