// Package store keeps the per-identity shopping cart in redis: an item index (sorted set of
// skuIds scored by add time), an item directory (hash of per-sku fields), one global expiry
// schedule (sorted set identity -> deadline in ms) and a history mirror produced by renaming
// the live index and directory.
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"shopcart_srvs/cart_srv/model"
)

//购物车默认有效时间（毫秒）
const DefaultTTL int64 = 1800000

type Options struct {
	Prefix     string           //key前缀，默认 cart
	DefaultTTL int64            //首次加购时的有效时间（毫秒）
	Now        func() time.Time //测试的时候可以换掉
}

type CartStore struct {
	client redis.UniversalClient
	keys   keyspace
	ttl    int64
	now    func() time.Time
}

// New builds a CartStore on an already connected client. The client is shared by every
// request and owned by the caller.
func New(client redis.UniversalClient, opts Options) *CartStore {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CartStore{
		client: client,
		keys:   newKeyspace(opts.Prefix),
		ttl:    opts.DefaultTTL,
		now:    opts.Now,
	}
}

func (s *CartStore) nowMillis() int64 {
	return s.now().UnixNano() / int64(time.Millisecond)
}

// AddItem inserts the sku or merges it into an existing line: goodsId and addTime are
// overwritten, count is incremented. The first sku of an empty cart seeds the deadline.
func (s *CartStore) AddItem(ctx context.Context, identity string, item model.CartItem) error {
	ns := s.keys.live(identity)
	var existsCmd *redis.BoolCmd
	var cardCmd *redis.IntCmd
	//先查一下这个sku在不在、购物车是不是空的
	if _, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		existsCmd = pipe.HExists(ctx, ns.infos, countField(item.SkuID))
		cardCmd = pipe.ZCard(ctx, ns.skus)
		return nil
	}); err != nil {
		return storeErr("add item", err)
	}
	seedDeadline := !existsCmd.Val() && cardCmd.Val() == 0

	_, err := atomicBatch(ctx, s.client, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, ns.skus, &redis.Z{Score: float64(item.AddTime), Member: item.SkuID})
		pipe.HSet(ctx, ns.infos,
			goodsIDField(item.SkuID), item.GoodsID,
			addTimeField(item.SkuID), item.AddTime)
		pipe.HIncrBy(ctx, ns.infos, countField(item.SkuID), item.Count)
		if seedDeadline {
			//并发加购不同sku时可能都会走到这里，覆盖写，无害
			pipe.ZAdd(ctx, s.keys.deadline(), &redis.Z{
				Score:  float64(s.nowMillis() + s.ttl),
				Member: identity,
			})
		}
		return nil
	})
	return storeErr("add item", err)
}

// DelItem is idempotent: deleting an absent sku succeeds.
func (s *CartStore) DelItem(ctx context.Context, identity, skuID string) error {
	return storeErr("del item", s.delItem(ctx, s.keys.live(identity), skuID))
}

func (s *CartStore) GetItem(ctx context.Context, identity, skuID string) (model.CartItem, error) {
	item, err := s.getItem(ctx, s.keys.live(identity), skuID)
	return item, storeErr("get item", err)
}

// GetItemList returns the items most recently added first.
func (s *CartStore) GetItemList(ctx context.Context, identity string) ([]model.CartItem, error) {
	items, err := s.getItemList(ctx, s.keys.live(identity))
	return items, storeErr("get item list", err)
}

// GetSkuIDs lists the skuIds ordered by add time, newest first when desc is set.
func (s *CartStore) GetSkuIDs(ctx context.Context, identity string, desc bool) ([]string, error) {
	ids, err := s.skuIDs(ctx, s.keys.skus(identity), desc)
	return ids, storeErr("get sku ids", err)
}

func (s *CartStore) IsExists(ctx context.Context, identity, skuID string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.keys.infos(identity), countField(skuID)).Result()
	return ok, storeErr("is exists", err)
}

// GetItemTotal is the number of distinct skus in the cart.
func (s *CartStore) GetItemTotal(ctx context.Context, identity string) (int64, error) {
	n, err := s.client.ZCard(ctx, s.keys.skus(identity)).Result()
	return n, storeErr("get item total", err)
}

// GetSkuTotal sums count over every sku of the cart.
func (s *CartStore) GetSkuTotal(ctx context.Context, identity string) (int64, error) {
	skuIDs, err := s.skuIDs(ctx, s.keys.skus(identity), false)
	if err != nil {
		return 0, storeErr("get sku total", err)
	}
	if len(skuIDs) == 0 {
		return 0, nil
	}
	fields := make([]string, 0, len(skuIDs))
	for _, skuID := range skuIDs {
		fields = append(fields, countField(skuID))
	}
	vals, err := s.client.HMGet(ctx, s.keys.infos(identity), fields...).Result()
	if err != nil {
		return 0, storeErr("get sku total", err)
	}
	var total int64
	for _, v := range vals {
		total += parseInt(v)
	}
	return total, nil
}

// IncreSkuCount adds delta (may be negative) to the sku count and returns the new count.
// The field is created at delta when absent.
func (s *CartStore) IncreSkuCount(ctx context.Context, identity, skuID string, delta int64) (int64, error) {
	n, err := s.client.HIncrBy(ctx, s.keys.infos(identity), countField(skuID), delta).Result()
	if err != nil {
		return 0, storeErr("incre sku count", err)
	}
	return n, nil
}

// Clear drops the item index, the item directory and the deadline in one batch.
func (s *CartStore) Clear(ctx context.Context, identity string) error {
	ns := s.keys.live(identity)
	_, err := atomicBatch(ctx, s.client, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, ns.skus)
		pipe.Del(ctx, ns.infos)
		pipe.ZRem(ctx, s.keys.deadline(), identity)
		return nil
	})
	return storeErr("clear", err)
}

//下面是当前购物车和历史购物车共用的实现

func (s *CartStore) delItem(ctx context.Context, ns namespace, skuID string) error {
	_, err := atomicBatch(ctx, s.client, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, ns.skus, skuID)
		pipe.HDel(ctx, ns.infos, itemFields(skuID)...)
		return nil
	})
	return err
}

func (s *CartStore) getItem(ctx context.Context, ns namespace, skuID string) (model.CartItem, error) {
	vals, err := s.client.HMGet(ctx, ns.infos, itemFields(skuID)...).Result()
	if err != nil {
		return model.CartItem{SkuID: skuID}, err
	}
	return itemFromValues(skuID, vals), nil
}

func (s *CartStore) getItemList(ctx context.Context, ns namespace) ([]model.CartItem, error) {
	skuIDs, err := s.skuIDs(ctx, ns.skus, true)
	if err != nil {
		return nil, err
	}
	items := make([]model.CartItem, 0, len(skuIDs))
	if len(skuIDs) == 0 {
		return items, nil
	}
	//一次HMGET把所有sku的字段取回来
	fields := make([]string, 0, 3*len(skuIDs))
	for _, skuID := range skuIDs {
		fields = append(fields, itemFields(skuID)...)
	}
	vals, err := s.client.HMGet(ctx, ns.infos, fields...).Result()
	if err != nil {
		return nil, err
	}
	for i, skuID := range skuIDs {
		items = append(items, itemFromValues(skuID, vals[3*i:3*i+3]))
	}
	return items, nil
}

func (s *CartStore) skuIDs(ctx context.Context, key string, desc bool) ([]string, error) {
	if desc {
		return s.client.ZRevRange(ctx, key, 0, -1).Result()
	}
	return s.client.ZRange(ctx, key, 0, -1).Result()
}

//vals的顺序和itemFields一致：goodsId, count, addTime。缺的字段取零值
func itemFromValues(skuID string, vals []interface{}) model.CartItem {
	item := model.CartItem{SkuID: skuID}
	if goodsID, ok := vals[0].(string); ok {
		item.GoodsID = goodsID
	}
	item.Count = parseInt(vals[1])
	item.AddTime = parseInt(vals[2])
	return item
}

func parseInt(v interface{}) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
