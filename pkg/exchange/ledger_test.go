package exchange

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/17ms/zeronote/internal/testutil"
	"github.com/17ms/zeronote/pkg/clients/redis"
	apperr "github.com/17ms/zeronote/pkg/errors"
)

func newRedisLedger(t *testing.T) (*RedisLedger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLedger(client, ""), mr
}

// ===========================================================================
// Shared ledger contract
// ===========================================================================

// TestLedgers_SingleUse runs the single-use contract against both
// ledgers.
func TestLedgers_SingleUse(t *testing.T) {
	redisLedger, _ := newRedisLedger(t)
	ledgers := map[string]CodeLedger{
		"memory": NewMemoryLedger(),
		"redis":  redisLedger,
	}
	for name, l := range ledgers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, l.Consume(ctx, "code-a", time.Minute))
			testutil.RequireErrorCode(t, l.Consume(ctx, "code-a", time.Minute), apperr.CodeCodeReplayed)
			require.NoError(t, l.Consume(ctx, "code-b", time.Minute), "codes are independent")
		})
	}
}

// TestLedgers_ConcurrentConsumeHasOneWinner verifies exactly one success under
// contention.
func TestLedgers_ConcurrentConsumeHasOneWinner(t *testing.T) {
	redisLedger, _ := newRedisLedger(t)
	for name, l := range map[string]CodeLedger{"memory": NewMemoryLedger(), "redis": redisLedger} {
		t.Run(name, func(t *testing.T) {
			var wins atomic.Int32
			var wg sync.WaitGroup
			for range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if l.Consume(context.Background(), "shared", time.Minute) == nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

// ===========================================================================
// Implementation details
// ===========================================================================

// TestMemoryLedger_Expiry verifies that a code is accepted again once
// its entry expires.
func TestMemoryLedger_Expiry(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.Consume(context.Background(), "c", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	assert.NoError(t, l.Consume(context.Background(), "c", time.Minute))
}

// TestRedisLedger_StoresDigestWithTTL verifies that only the digest is stored
// and that it carries the TTL.
func TestRedisLedger_StoresDigestWithTTL(t *testing.T) {
	l, mr := newRedisLedger(t)
	require.NoError(t, l.Consume(context.Background(), "plain-code", 5*time.Minute))

	key := "zeronote:code:" + codeDigest("plain-code")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 5*time.Minute, mr.TTL(key))
	for _, k := range mr.Keys() {
		assert.NotContains(t, k, "plain-code")
	}

	mr.FastForward(6 * time.Minute)
	assert.NoError(t, l.Consume(context.Background(), "plain-code", time.Minute))
}

// TestRedisLedger_Unavailable verifies that an unreachable Redis fails
// closed.
func TestRedisLedger_Unavailable(t *testing.T) {
	l, mr := newRedisLedger(t)
	mr.Close()

	err := l.Consume(context.Background(), "c", time.Minute)
	testutil.RequireErrorCode(t, err, apperr.CodeExchangeUnavailable)
}

// TestExchange_RedisLedgerBlocksReplay verifies replay protection across two
// exchangers sharing one Redis.
func TestExchange_RedisLedgerBlocksReplay(t *testing.T) {
	te := newTokenEndpoint(t)
	l, _ := newRedisLedger(t)
	e := newExchanger(t, te, func(c *Config) { c.Ledger = l })

	_, err := e.Exchange(context.Background(), validRequest())
	require.NoError(t, err)
	_, err = e.Exchange(context.Background(), validRequest())
	testutil.RequireErrorCode(t, err, apperr.CodeCodeReplayed)
	assert.Equal(t, int64(1), te.hits.Load())
}
