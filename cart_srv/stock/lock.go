// Package stock tracks how many units of each sku are held by carts. A lock is recorded per
// (sku, identity) entry with a release deadline so that abandoned carts give their stock back.
package stock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

//库存锁定默认持续时间，和购物车有效期一致
const DefaultLockTTL = 30 * time.Minute

type Options struct {
	Prefix  string
	LockTTL time.Duration
	Now     func() time.Time
}

type LockRepo struct {
	client  redis.UniversalClient
	prefix  string
	lockTTL time.Duration
	now     func() time.Time
}

func NewLockRepo(client redis.UniversalClient, opts Options) *LockRepo {
	if opts.Prefix == "" {
		opts.Prefix = "stock"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LockRepo{client: client, prefix: opts.Prefix, lockTTL: opts.LockTTL, now: opts.Now}
}

//hash，sku -> 锁定总数
func (r *LockRepo) countKey() string {
	return r.prefix + ":lock"
}

//hash，entry -> 某个购物车锁定的数量
func (r *LockRepo) logKey() string {
	return r.prefix + ":lock:log"
}

//有序集合，entry -> 锁定截止时间（毫秒）
func (r *LockRepo) timeKey() string {
	return r.prefix + ":lock:time"
}

//带长度前缀，sku里有什么字符都能拆回来
func entryKey(skuID, identity string) string {
	return fmt.Sprintf("%d:%s:%s", len(skuID), skuID, identity)
}

func parseEntry(entry string) (skuID, identity string, err error) {
	i := strings.IndexByte(entry, ':')
	if i < 0 {
		return "", "", fmt.Errorf("malformed stock lock entry %q", entry)
	}
	n, err := strconv.Atoi(entry[:i])
	if err != nil || n < 0 || len(entry) < i+1+n+1 || entry[i+1+n] != ':' {
		return "", "", fmt.Errorf("malformed stock lock entry %q", entry)
	}
	return entry[i+1 : i+1+n], entry[i+1+n+1:], nil
}

func toMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

func (r *LockRepo) deadline(until time.Time) int64 {
	if until.IsZero() {
		until = r.now().Add(r.lockTTL)
	}
	return toMillis(until)
}

// Lock holds count units of sku for identity until the given time (zero: now + lock ttl).
func (r *LockRepo) Lock(ctx context.Context, skuID, identity string, count int64, until time.Time) error {
	entry := entryKey(skuID, identity)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, r.countKey(), skuID, count)
		pipe.ZAdd(ctx, r.timeKey(), &redis.Z{Score: float64(r.deadline(until)), Member: entry})
		pipe.HIncrBy(ctx, r.logKey(), entry, count)
		return nil
	})
	if err != nil {
		return fmt.Errorf("lock stock %s for %s: %w", skuID, identity, err)
	}
	return nil
}

//计数减到0以下的字段直接删掉；这个entry没有锁定数量了才把时间记录删掉
var unlockScript = redis.NewScript(`
local count = tonumber(ARGV[3])
local total = redis.call('HINCRBY', KEYS[1], ARGV[1], -count)
if total <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
end
local logged = redis.call('HINCRBY', KEYS[2], ARGV[2], -count)
if logged <= 0 then
	redis.call('HDEL', KEYS[2], ARGV[2])
	redis.call('ZREM', KEYS[3], ARGV[2])
end
return total
`)

// Unlock releases count units of sku held by identity.
func (r *LockRepo) Unlock(ctx context.Context, skuID, identity string, count int64) error {
	keys := []string{r.countKey(), r.logKey(), r.timeKey()}
	if err := unlockScript.Run(ctx, r.client, keys, skuID, entryKey(skuID, identity), count).Err(); err != nil {
		return fmt.Errorf("unlock stock %s for %s: %w", skuID, identity, err)
	}
	return nil
}

func (r *LockRepo) GetLockCount(ctx context.Context, skuID string) (int64, error) {
	n, err := r.client.HGet(ctx, r.countKey(), skuID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get lock count %s: %w", skuID, err)
	}
	return n, nil
}

// GetLockCounts returns the locked total of each sku, 0 for skus nobody holds.
func (r *LockRepo) GetLockCounts(ctx context.Context, skuIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(skuIDs))
	if len(skuIDs) == 0 {
		return counts, nil
	}
	vals, err := r.client.HMGet(ctx, r.countKey(), skuIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("get lock counts: %w", err)
	}
	for i, skuID := range skuIDs {
		var n int64
		if str, ok := vals[i].(string); ok {
			n, _ = strconv.ParseInt(str, 10, 64)
		}
		counts[skuID] = n
	}
	return counts, nil
}

// UpdateLockTime moves the release deadline of the (sku, identity) lock.
func (r *LockRepo) UpdateLockTime(ctx context.Context, skuID, identity string, until time.Time) error {
	err := r.client.ZAdd(ctx, r.timeKey(), &redis.Z{
		Score:  float64(r.deadline(until)),
		Member: entryKey(skuID, identity),
	}).Err()
	if err != nil {
		return fmt.Errorf("update lock time %s for %s: %w", skuID, identity, err)
	}
	return nil
}

var releaseScript = redis.NewScript(`
local count = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
if count > 0 then
	local total = redis.call('HINCRBY', KEYS[1], ARGV[2], -count)
	if total <= 0 then
		redis.call('HDEL', KEYS[1], ARGV[2])
	end
end
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
return count
`)

// UnlockExpired releases every lock whose deadline is at or before the given time, limit
// entries per round. Returns the number of entries released.
func (r *LockRepo) UnlockExpired(ctx context.Context, before time.Time, limit int64) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	keys := []string{r.countKey(), r.logKey(), r.timeKey()}
	released := 0
	for {
		entries, err := r.client.ZRangeByScore(ctx, r.timeKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(toMillis(before), 10),
			Count: limit,
		}).Result()
		if err != nil {
			return released, fmt.Errorf("list expired stock locks: %w", err)
		}
		for _, entry := range entries {
			skuID, _, err := parseEntry(entry)
			if err != nil {
				//坏数据只删时间记录，免得每轮都扫到
				if err := r.client.ZRem(ctx, r.timeKey(), entry).Err(); err != nil {
					return released, fmt.Errorf("drop stock lock entry: %w", err)
				}
				continue
			}
			if err := releaseScript.Run(ctx, r.client, keys, entry, skuID).Err(); err != nil {
				return released, fmt.Errorf("release stock lock %s: %w", entry, err)
			}
			released++
		}
		if int64(len(entries)) < limit {
			return released, nil
		}
	}
}
