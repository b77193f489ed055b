package store

import (
	"context"

	"github.com/go-redis/redis/v8"

	"shopcart_srvs/cart_srv/model"
)

//KEYS: 索引, 目录, 历史索引, 历史目录, 截止时间集合。ARGV[1]: identity
//两个源key都不存在时历史保持不变；只存在一个时，缺的那一半对应的历史key删掉，历史不会新旧混在一起
var toHistoryScript = redis.NewScript(`
local exists = {}
local moved = 0
for i = 1, 2 do
	exists[i] = redis.call('EXISTS', KEYS[i])
	moved = moved + exists[i]
end
if moved > 0 then
	for i = 1, 2 do
		if exists[i] == 1 then
			redis.call('RENAME', KEYS[i], KEYS[i + 2])
		else
			redis.call('DEL', KEYS[i + 2])
		end
	end
end
redis.call('ZREM', KEYS[5], ARGV[1])
return moved
`)

// ToHistory moves the live cart into the history namespace in one script: the item index
// and directory are renamed and the deadline is removed. Whatever history was there before
// is replaced as a whole. An empty live cart has nothing to move; its deadline is still
// dropped and the previous history is kept.
func (s *CartStore) ToHistory(ctx context.Context, identity string) error {
	live, hist := s.keys.live(identity), s.keys.history(identity)
	keys := []string{live.skus, live.infos, hist.skus, hist.infos, s.keys.deadline()}
	err := toHistoryScript.Run(ctx, s.client, keys, identity).Err()
	return storeErr("to history", err)
}

func (s *CartStore) ClearHistory(ctx context.Context, identity string) error {
	hist := s.keys.history(identity)
	err := s.client.Del(ctx, hist.skus, hist.infos).Err()
	return storeErr("clear history", err)
}

func (s *CartStore) DelHistoryItem(ctx context.Context, identity, skuID string) error {
	return storeErr("del history item", s.delItem(ctx, s.keys.history(identity), skuID))
}

func (s *CartStore) GetHistoryItem(ctx context.Context, identity, skuID string) (model.CartItem, error) {
	item, err := s.getItem(ctx, s.keys.history(identity), skuID)
	return item, storeErr("get history item", err)
}

func (s *CartStore) GetHistoryItemList(ctx context.Context, identity string) ([]model.CartItem, error) {
	items, err := s.getItemList(ctx, s.keys.history(identity))
	return items, storeErr("get history item list", err)
}

func (s *CartStore) GetHistorySkuIDs(ctx context.Context, identity string, desc bool) ([]string, error) {
	ids, err := s.skuIDs(ctx, s.keys.historySkus(identity), desc)
	return ids, storeErr("get history sku ids", err)
}
