package store

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"shopcart_srvs/cart_srv/model"
)

//新截止时间 = max(now, 当前截止时间) + 增量。读和写在一个脚本里完成，并发延长不会丢
var extendDeadlineScript = redis.NewScript(`
local now = tonumber(ARGV[2])
local deadline = now
local current = redis.call('ZSCORE', KEYS[1], ARGV[1])
if current then
	current = tonumber(current)
	if current > now then
		deadline = current
	end
end
deadline = deadline + tonumber(ARGV[3])
redis.call('ZADD', KEYS[1], deadline, ARGV[1])
return deadline
`)

func (s *CartStore) deadlineOf(ctx context.Context, identity string) (int64, bool, error) {
	score, err := s.client.ZScore(ctx, s.keys.deadline(), identity).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return int64(score), true, nil
}

// GetEffectiveTime returns the remaining lifetime in ms, 0 when expired or unscheduled.
func (s *CartStore) GetEffectiveTime(ctx context.Context, identity string) (int64, error) {
	deadline, ok, err := s.deadlineOf(ctx, identity)
	if err != nil {
		return 0, storeErr("get effective time", err)
	}
	if !ok {
		return 0, nil
	}
	remain := deadline - s.nowMillis()
	if remain < 0 {
		return 0, nil
	}
	return remain, nil
}

// IncreEffectiveTime extends the deadline by incrementMs, counting from now when the
// cart has already expired or was never scheduled. Returns the new deadline in ms.
func (s *CartStore) IncreEffectiveTime(ctx context.Context, identity string, incrementMs int64) (int64, error) {
	deadline, err := extendDeadlineScript.Run(ctx, s.client,
		[]string{s.keys.deadline()}, identity, s.nowMillis(), incrementMs).Int64()
	if err != nil {
		return 0, storeErr("incre effective time", err)
	}
	return deadline, nil
}

// ResetEffectiveTime sets the deadline to now + default ttl.
func (s *CartStore) ResetEffectiveTime(ctx context.Context, identity string) error {
	err := s.client.ZAdd(ctx, s.keys.deadline(), &redis.Z{
		Score:  float64(s.nowMillis() + s.ttl),
		Member: identity,
	}).Err()
	return storeErr("reset effective time", err)
}

//截止时间严格大于当前时间才算有效
func (s *CartStore) GetStatus(ctx context.Context, identity string) (model.CartStatus, error) {
	deadline, ok, err := s.deadlineOf(ctx, identity)
	if err != nil {
		return model.CartNoEffective, storeErr("get status", err)
	}
	if ok && deadline > s.nowMillis() {
		return model.CartEffective, nil
	}
	return model.CartNoEffective, nil
}

// ListExpired returns up to limit identities whose deadline is at or before the given time,
// earliest deadline first. limit <= 0 means no limit.
func (s *CartStore) ListExpired(ctx context.Context, before time.Time, limit int64) ([]string, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixNano()/int64(time.Millisecond), 10),
	}
	if limit > 0 {
		opt.Count = limit
	}
	ids, err := s.client.ZRangeByScore(ctx, s.keys.deadline(), opt).Result()
	if err != nil {
		return nil, storeErr("list expired", err)
	}
	return ids, nil
}
