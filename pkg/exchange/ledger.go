package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/17ms/zeronote/pkg/clients/redis"
	apperr "github.com/17ms/zeronote/pkg/errors"
)

// DefaultCodeTTL is how long a consumed code is remembered. Providers
// expire authorization codes well before this.
const DefaultCodeTTL = 10 * time.Minute

// CodeLedger remembers authorization codes that have been presented for
// exchange. Consume succeeds exactly once per code within ttl; later calls
// fail with [apperr.CodeCodeReplayed].
type CodeLedger interface {
	// Consume records code as used. A ttl of zero or less means
	// [DefaultCodeTTL].
	Consume(ctx context.Context, code string, ttl time.Duration) error
}

// codeDigest is the ledger key for code. Only digests are stored, so a
// ledger dump never reveals a live authorization code.
func codeDigest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// replayed is the error every ledger returns for a second presentation.
func replayed() error {
	return apperr.New(apperr.CodeCodeReplayed, "exchange: authorization code already used")
}

// MemoryLedger keeps digests in process memory. It only protects a single
// replica.
type MemoryLedger struct {
	cache *gocache.Cache
}

var _ CodeLedger = (*MemoryLedger)(nil)

// NewMemoryLedger returns an empty ledger whose expired digests are swept
// once a minute.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{cache: gocache.New(DefaultCodeTTL, time.Minute)}
}

// Consume relies on go-cache's Add, which fails when an unexpired entry
// exists, so concurrent callers race to a single winner.
func (l *MemoryLedger) Consume(_ context.Context, code string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if err := l.cache.Add(codeDigest(code), struct{}{}, ttl); err != nil {
		return replayed()
	}
	return nil
}

// RedisLedger shares digests across replicas through SET NX.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

var _ CodeLedger = (*RedisLedger)(nil)

// NewRedisLedger stores keys as prefix + digest. An empty prefix becomes
// "zeronote:code:".
func NewRedisLedger(client *redis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "zeronote:code:"
	}
	return &RedisLedger{client: client, prefix: prefix}
}

// Consume fails closed: when Redis cannot be reached the code is not
// exchanged and the caller sees [apperr.CodeExchangeUnavailable].
func (l *RedisLedger) Consume(ctx context.Context, code string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	stored, err := l.client.SetNX(ctx, l.prefix+codeDigest(code), time.Now().UTC().Format(time.RFC3339), ttl)
	if err != nil {
		if apperr.IsTimeout(err) {
			return apperr.Wrap(err, apperr.CodeExchangeTimeout, "exchange: code ledger timed out")
		}
		return apperr.Wrap(err, apperr.CodeExchangeUnavailable, "exchange: code ledger unavailable")
	}
	if !stored {
		return replayed()
	}
	return nil
}
