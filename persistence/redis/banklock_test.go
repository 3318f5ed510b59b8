package redis

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBank = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestBankLockAcquireRelease(t *testing.T) {
	client := lockTestClient(t)
	ctx := context.Background()

	lock := NewBankLock(client)

	require.NoError(t, lock.Acquire(ctx, "ethereum", testBank))

	// Second acquire by another holder fails while held
	other := NewBankLock(client)
	err := other.Acquire(ctx, "ethereum", testBank)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBankLocked)

	// After release the other holder can acquire
	require.NoError(t, lock.Release(ctx, "ethereum", testBank))
	require.NoError(t, other.Acquire(ctx, "ethereum", testBank))
}

func TestBankLockIsPerChainAndBank(t *testing.T) {
	client := lockTestClient(t)
	ctx := context.Background()

	lock := NewBankLock(client)
	other := NewBankLock(client)

	require.NoError(t, lock.Acquire(ctx, "ethereum", testBank))

	// Same bank on a different chain is an independent lock
	require.NoError(t, other.Acquire(ctx, "polygon", testBank))

	// Different bank on the held chain is independent too
	otherBank := common.HexToAddress("0x2222222222222222222222222222222222222222")
	require.NoError(t, other.Acquire(ctx, "ethereum", otherBank))
}

func TestBankLockReleaseIsTokenChecked(t *testing.T) {
	client := lockTestClient(t)
	ctx := context.Background()

	holder := NewBankLock(client)
	stranger := NewBankLock(client)

	require.NoError(t, holder.Acquire(ctx, "ethereum", testBank))

	// A holder that never acquired the lock must not free it
	require.NoError(t, stranger.Release(ctx, "ethereum", testBank))
	err := stranger.Acquire(ctx, "ethereum", testBank)
	assert.ErrorIs(t, err, ErrBankLocked)
}

func TestBankLockReleaseWithoutAcquire(t *testing.T) {
	client := lockTestClient(t)
	ctx := context.Background()

	lock := NewBankLock(client)

	// Releasing a lock that was never taken is a no-op
	assert.NoError(t, lock.Release(ctx, "ethereum", testBank))
}

func TestBankLockTTLExpiry(t *testing.T) {
	client := lockTestClient(t)
	ctx := context.Background()

	lock := NewBankLock(client, WithBankLockTTL(100*time.Millisecond))
	require.NoError(t, lock.Acquire(ctx, "ethereum", testBank))

	time.Sleep(200 * time.Millisecond)

	// Expired lock is free for the taking
	other := NewBankLock(client)
	require.NoError(t, other.Acquire(ctx, "ethereum", testBank))

	// The original holder's release must not clobber the new holder
	require.NoError(t, lock.Release(ctx, "ethereum", testBank))
	val, err := client.Get(ctx, other.key("ethereum", testBank)).Result()
	require.NoError(t, err)
	assert.Equal(t, other.token, val)
}

func TestBankLockKeyPrefix(t *testing.T) {
	client := lockTestClient(t)
	ctx := context.Background()

	prodLock := NewBankLock(client, WithBankLockKeyPrefix("prod"))
	stageLock := NewBankLock(client, WithBankLockKeyPrefix("stage"))

	// Prefixed locks are fully isolated from each other
	require.NoError(t, prodLock.Acquire(ctx, "ethereum", testBank))
	require.NoError(t, stageLock.Acquire(ctx, "ethereum", testBank))

	assert.Equal(t, "prod:keymaster:banklock:ethereum:"+testBank.Hex(), prodLock.key("ethereum", testBank))
}
