package handler

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"shopcart_srvs/cart_srv/config"
	"shopcart_srvs/cart_srv/model"
	"shopcart_srvs/cart_srv/store"
)

//库存锁定，失败只打日志，不影响购物车本身的操作
type StockLocker interface {
	Lock(ctx context.Context, skuID, identity string, count int64, until time.Time) error
	Unlock(ctx context.Context, skuID, identity string, count int64) error
	UpdateLockTime(ctx context.Context, skuID, identity string, until time.Time) error
}

type CartServer struct {
	Store  *store.CartStore
	Stock  StockLocker
	Limits config.CartConfig
	Now    func() time.Time
}

func NewCartServer(s *store.CartStore, stock StockLocker, limits config.CartConfig) *CartServer {
	return &CartServer{
		Store:  s,
		Stock:  stock,
		Limits: limits.WithDefaults(),
		Now:    time.Now,
	}
}

func (c *CartServer) nowMillis() int64 {
	return c.Now().UnixNano() / int64(time.Millisecond)
}

func (c *CartServer) AddCartItem(ctx context.Context, identity string, item model.CartItem) (model.CartItem, error) {
	if identity == "" || item.SkuID == "" {
		return model.CartItem{}, invalidArgErr("identity和skuId不能为空")
	}
	if item.Count <= 0 {
		return model.CartItem{}, invalidArgErr("加购数量必须大于0")
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "add_cart_item")
	defer span.Finish()

	if _, _, err := c.expire(ctx, identity); err != nil {
		return model.CartItem{}, internalErr("归档过期购物车", err)
	}
	exists, err := c.Store.IsExists(ctx, identity, item.SkuID)
	if err != nil {
		return model.CartItem{}, internalErr("查询购物车记录", err)
	}
	var current int64
	if exists {
		cur, err := c.Store.GetItem(ctx, identity, item.SkuID)
		if err != nil {
			return model.CartItem{}, internalErr("查询购物车记录", err)
		}
		current = cur.Count
	} else {
		//已经在购物车里的sku不受数量限制
		total, err := c.Store.GetItemTotal(ctx, identity)
		if err != nil {
			return model.CartItem{}, internalErr("查询购物车数量", err)
		}
		if total >= c.Limits.MaxItems {
			return model.CartItem{}, ErrCartFull
		}
	}
	if current+item.Count > c.Limits.MaxSkuCount {
		return model.CartItem{}, skuLimitErr(c.Limits.MaxSkuCount)
	}
	if item.AddTime == 0 {
		item.AddTime = c.nowMillis()
	}
	if err := c.Store.AddItem(ctx, identity, item); err != nil {
		return model.CartItem{}, internalErr("加入购物车", err)
	}
	//重新加购的商品从历史记录里去掉
	if err := c.Store.DelHistoryItem(ctx, identity, item.SkuID); err != nil {
		zap.S().Warnf("删除历史购物车记录失败 %s %s: %v", identity, item.SkuID, err)
	}

	c.lockStock(ctx, identity, item.SkuID, item.Count)
	if !exists {
		//新sku加入，整个购物车的库存锁定时间一起延长
		c.resetStockLockTime(ctx, identity, time.Time{})
	}

	added, err := c.Store.GetItem(ctx, identity, item.SkuID)
	if err != nil {
		return model.CartItem{}, internalErr("查询购物车记录", err)
	}
	return added, nil
}

func (c *CartServer) DelCartItem(ctx context.Context, identity, skuID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "del_cart_item")
	defer span.Finish()

	if err := c.ensureEffective(ctx, identity); err != nil {
		return err
	}
	item, err := c.Store.GetItem(ctx, identity, skuID)
	if err != nil {
		return internalErr("查询购物车记录", err)
	}
	if err := c.Store.DelItem(ctx, identity, skuID); err != nil {
		return internalErr("删除购物车记录", err)
	}
	c.unlockStock(ctx, identity, skuID, item.Count)

	total, err := c.Store.GetItemTotal(ctx, identity)
	if err != nil {
		return internalErr("查询购物车数量", err)
	}
	if total == 0 {
		if err := c.Store.Clear(ctx, identity); err != nil {
			return internalErr("清空购物车", err)
		}
	}
	return nil
}

// IncreCartSkuCount adds delta to a sku already in the cart and returns the new count.
func (c *CartServer) IncreCartSkuCount(ctx context.Context, identity, skuID string, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, invalidArgErr("增加数量必须大于0")
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "incre_cart_sku_count")
	defer span.Finish()

	if err := c.ensureEffective(ctx, identity); err != nil {
		return 0, err
	}
	item, err := c.Store.GetItem(ctx, identity, skuID)
	if err != nil {
		return 0, internalErr("查询购物车记录", err)
	}
	if item.Count == 0 {
		return 0, ErrItemNotFound
	}
	if item.Count+delta > c.Limits.MaxSkuCount {
		return 0, skuLimitErr(c.Limits.MaxSkuCount)
	}
	count, err := c.Store.IncreSkuCount(ctx, identity, skuID, delta)
	if err != nil {
		return 0, internalErr("增加商品数量", err)
	}
	c.lockStock(ctx, identity, skuID, delta)
	return count, nil
}

// DecreCartSkuCount removes delta units of the sku; the line is deleted once nothing is left.
func (c *CartServer) DecreCartSkuCount(ctx context.Context, identity, skuID string, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, invalidArgErr("减少数量必须大于0")
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "decre_cart_sku_count")
	defer span.Finish()

	if err := c.ensureEffective(ctx, identity); err != nil {
		return 0, err
	}
	item, err := c.Store.GetItem(ctx, identity, skuID)
	if err != nil {
		return 0, internalErr("查询购物车记录", err)
	}
	if item.Count == 0 {
		return 0, ErrItemNotFound
	}
	left, released, err := c.decre(ctx, identity, item, delta)
	if err != nil {
		return 0, internalErr("减少商品数量", err)
	}
	c.unlockStock(ctx, identity, skuID, released)
	return left, nil
}

// DecreCartSkuCountByGoodsID removes delta units spread over the skus of one goods,
// newest line first.
func (c *CartServer) DecreCartSkuCountByGoodsID(ctx context.Context, identity, goodsID string, delta int64) error {
	if delta <= 0 {
		return invalidArgErr("减少数量必须大于0")
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "decre_cart_sku_count_by_goods")
	defer span.Finish()

	if err := c.ensureEffective(ctx, identity); err != nil {
		return err
	}
	items, err := c.Store.GetItemList(ctx, identity)
	if err != nil {
		return internalErr("查询购物车列表", err)
	}
	for _, item := range items {
		if delta <= 0 {
			break
		}
		if item.GoodsID != goodsID || item.Count <= 0 {
			continue
		}
		_, released, err := c.decre(ctx, identity, item, delta)
		if err != nil {
			return internalErr("减少商品数量", err)
		}
		c.unlockStock(ctx, identity, item.SkuID, released)
		delta -= released
	}
	return nil
}

//返回剩余数量和实际减掉的数量
func (c *CartServer) decre(ctx context.Context, identity string, item model.CartItem, delta int64) (int64, int64, error) {
	if item.Count <= delta {
		if err := c.Store.DelItem(ctx, identity, item.SkuID); err != nil {
			return 0, 0, err
		}
		return 0, item.Count, nil
	}
	left, err := c.Store.IncreSkuCount(ctx, identity, item.SkuID, -delta)
	if err != nil {
		return 0, 0, err
	}
	return left, delta, nil
}

func (c *CartServer) GetCartItems(ctx context.Context, identity string) ([]model.CartItem, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_cart_items")
	defer span.Finish()

	if _, _, err := c.expire(ctx, identity); err != nil {
		return nil, internalErr("归档过期购物车", err)
	}
	items, err := c.Store.GetItemList(ctx, identity)
	if err != nil {
		return nil, internalErr("查询购物车列表", err)
	}
	return items, nil
}

func (c *CartServer) GetCartItem(ctx context.Context, identity, skuID string) (model.CartItem, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_cart_item")
	defer span.Finish()

	if _, _, err := c.expire(ctx, identity); err != nil {
		return model.CartItem{}, internalErr("归档过期购物车", err)
	}
	exists, err := c.Store.IsExists(ctx, identity, skuID)
	if err != nil {
		return model.CartItem{}, internalErr("查询购物车记录", err)
	}
	if !exists {
		return model.CartItem{}, ErrItemNotFound
	}
	item, err := c.Store.GetItem(ctx, identity, skuID)
	if err != nil {
		return model.CartItem{}, internalErr("查询购物车记录", err)
	}
	return item, nil
}

// GetCartInfo returns the whole cart together with the remaining lifetime and the history.
func (c *CartServer) GetCartInfo(ctx context.Context, identity string) (model.Cart, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_cart_info")
	defer span.Finish()

	cart := model.Cart{Identity: identity}
	if _, _, err := c.expire(ctx, identity); err != nil {
		return cart, internalErr("归档过期购物车", err)
	}
	items, err := c.Store.GetItemList(ctx, identity)
	if err != nil {
		return cart, internalErr("查询购物车列表", err)
	}
	effectiveTime, err := c.Store.GetEffectiveTime(ctx, identity)
	if err != nil {
		return cart, internalErr("查询购物车有效时间", err)
	}
	history, err := c.Store.GetHistoryItemList(ctx, identity)
	if err != nil {
		return cart, internalErr("查询历史购物车", err)
	}
	cart.Items = items
	cart.HistoryItems = history
	cart.ItemTotal = int64(len(items))
	for _, item := range items {
		cart.SkuTotal += item.Count
	}
	cart.EffectiveTime = effectiveTime
	return cart, nil
}

func (c *CartServer) GetCartSkuIDs(ctx context.Context, identity string, desc bool) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_cart_sku_ids")
	defer span.Finish()

	if _, _, err := c.expire(ctx, identity); err != nil {
		return nil, internalErr("归档过期购物车", err)
	}
	ids, err := c.Store.GetSkuIDs(ctx, identity, desc)
	if err != nil {
		return nil, internalErr("查询购物车sku", err)
	}
	return ids, nil
}

func (c *CartServer) GetCartEffectiveTime(ctx context.Context, identity string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_cart_effective_time")
	defer span.Finish()

	if _, _, err := c.expire(ctx, identity); err != nil {
		return 0, internalErr("归档过期购物车", err)
	}
	remain, err := c.Store.GetEffectiveTime(ctx, identity)
	if err != nil {
		return 0, internalErr("查询购物车有效时间", err)
	}
	return remain, nil
}

func (c *CartServer) GetCartItemTotal(ctx context.Context, identity string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_cart_item_total")
	defer span.Finish()

	if _, _, err := c.expire(ctx, identity); err != nil {
		return 0, internalErr("归档过期购物车", err)
	}
	total, err := c.Store.GetItemTotal(ctx, identity)
	if err != nil {
		return 0, internalErr("查询购物车数量", err)
	}
	return total, nil
}

func (c *CartServer) GetCartSkuTotal(ctx context.Context, identity string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_cart_sku_total")
	defer span.Finish()

	if _, _, err := c.expire(ctx, identity); err != nil {
		return 0, internalErr("归档过期购物车", err)
	}
	total, err := c.Store.GetSkuTotal(ctx, identity)
	if err != nil {
		return 0, internalErr("查询购物车件数", err)
	}
	return total, nil
}

func (c *CartServer) GetCartSkuCount(ctx context.Context, identity, skuID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_cart_sku_count")
	defer span.Finish()

	if _, _, err := c.expire(ctx, identity); err != nil {
		return 0, internalErr("归档过期购物车", err)
	}
	item, err := c.Store.GetItem(ctx, identity, skuID)
	if err != nil {
		return 0, internalErr("查询购物车记录", err)
	}
	return item.Count, nil
}

// GetGoodsCount sums the count of every sku that belongs to goodsID.
func (c *CartServer) GetGoodsCount(ctx context.Context, identity, goodsID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_goods_count")
	defer span.Finish()

	if _, _, err := c.expire(ctx, identity); err != nil {
		return 0, internalErr("归档过期购物车", err)
	}
	items, err := c.Store.GetItemList(ctx, identity)
	if err != nil {
		return 0, internalErr("查询购物车列表", err)
	}
	var total int64
	for _, item := range items {
		if item.GoodsID == goodsID {
			total += item.Count
		}
	}
	return total, nil
}

func (c *CartServer) GetCartStatus(ctx context.Context, identity string) (model.CartStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_cart_status")
	defer span.Finish()

	s, err := c.Store.GetStatus(ctx, identity)
	if err != nil {
		return model.CartNoEffective, internalErr("查询购物车状态", err)
	}
	return s, nil
}

// ResetCartEffectiveTime restarts the cart lifetime from now and moves the stock locks along.
func (c *CartServer) ResetCartEffectiveTime(ctx context.Context, identity string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reset_cart_effective_time")
	defer span.Finish()

	if err := c.Store.ResetEffectiveTime(ctx, identity); err != nil {
		return internalErr("重置购物车有效时间", err)
	}
	c.resetStockLockTime(ctx, identity, time.Time{})
	return nil
}

// ExtendCartEffectiveTime pushes the deadline back by incrementMs and returns the new deadline.
func (c *CartServer) ExtendCartEffectiveTime(ctx context.Context, identity string, incrementMs int64) (int64, error) {
	if incrementMs <= 0 {
		return 0, invalidArgErr("延长时间必须大于0")
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "extend_cart_effective_time")
	defer span.Finish()

	deadline, err := c.Store.IncreEffectiveTime(ctx, identity, incrementMs)
	if err != nil {
		return 0, internalErr("延长购物车有效时间", err)
	}
	c.resetStockLockTime(ctx, identity, time.Unix(0, deadline*int64(time.Millisecond)))
	return deadline, nil
}

// ArchiveCart moves the cart into history whatever its status and releases its stock.
// The archived items are returned.
func (c *CartServer) ArchiveCart(ctx context.Context, identity string) ([]model.CartItem, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "archive_cart")
	defer span.Finish()

	items, err := c.archive(ctx, identity)
	if err != nil {
		return nil, internalErr("归档购物车", err)
	}
	return items, nil
}

// ExpireCart archives the cart only when its deadline has passed. archived is false when
// the cart is still effective.
func (c *CartServer) ExpireCart(ctx context.Context, identity string) (items []model.CartItem, archived bool, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "expire_cart")
	defer span.Finish()

	items, archived, err = c.expire(ctx, identity)
	if err != nil {
		return nil, false, internalErr("归档过期购物车", err)
	}
	return items, archived, nil
}

func (c *CartServer) ClearCart(ctx context.Context, identity string, unlockStock bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "clear_cart")
	defer span.Finish()

	var items []model.CartItem
	if unlockStock {
		var err error
		if items, err = c.Store.GetItemList(ctx, identity); err != nil {
			return internalErr("查询购物车列表", err)
		}
	}
	if err := c.Store.Clear(ctx, identity); err != nil {
		return internalErr("清空购物车", err)
	}
	c.unlockItems(ctx, identity, items)
	return nil
}

func (c *CartServer) ClearCartHistory(ctx context.Context, identity string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "clear_cart_history")
	defer span.Finish()

	if err := c.Store.ClearHistory(ctx, identity); err != nil {
		return internalErr("清空历史购物车", err)
	}
	return nil
}

func (c *CartServer) DelCartHistoryItem(ctx context.Context, identity, skuID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "del_cart_history_item")
	defer span.Finish()

	if err := c.Store.DelHistoryItem(ctx, identity, skuID); err != nil {
		return internalErr("删除历史购物车记录", err)
	}
	return nil
}

func (c *CartServer) GetCartHistoryItems(ctx context.Context, identity string) ([]model.CartItem, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_cart_history_items")
	defer span.Finish()

	items, err := c.Store.GetHistoryItemList(ctx, identity)
	if err != nil {
		return nil, internalErr("查询历史购物车", err)
	}
	return items, nil
}

func (c *CartServer) GetCartHistorySkuIDs(ctx context.Context, identity string, desc bool) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "get_cart_history_sku_ids")
	defer span.Finish()

	ids, err := c.Store.GetHistorySkuIDs(ctx, identity, desc)
	if err != nil {
		return nil, internalErr("查询历史购物车sku", err)
	}
	return ids, nil
}

//写操作之前检查：失效的购物车先归档，再返回ErrCartExpired
func (c *CartServer) ensureEffective(ctx context.Context, identity string) error {
	_, archived, err := c.expire(ctx, identity)
	if err != nil {
		return internalErr("归档过期购物车", err)
	}
	if archived {
		return ErrCartExpired
	}
	return nil
}

//购物车失效了就归档，返回被归档的商品
func (c *CartServer) expire(ctx context.Context, identity string) ([]model.CartItem, bool, error) {
	s, err := c.Store.GetStatus(ctx, identity)
	if err != nil {
		return nil, false, err
	}
	if s == model.CartEffective {
		return nil, false, nil
	}
	items, err := c.archive(ctx, identity)
	if err != nil {
		return nil, false, err
	}
	return items, true, nil
}

func (c *CartServer) archive(ctx context.Context, identity string) ([]model.CartItem, error) {
	items, err := c.Store.GetItemList(ctx, identity)
	if err != nil {
		return nil, err
	}
	if err := c.Store.ToHistory(ctx, identity); err != nil {
		return nil, err
	}
	c.unlockItems(ctx, identity, items)
	return items, nil
}

func (c *CartServer) lockStock(ctx context.Context, identity, skuID string, count int64) {
	if count <= 0 {
		return
	}
	if err := c.Stock.Lock(ctx, skuID, identity, count, time.Time{}); err != nil {
		zap.S().Warnf("锁定库存失败 %s %s: %v", identity, skuID, err)
	}
}

func (c *CartServer) unlockStock(ctx context.Context, identity, skuID string, count int64) {
	if count <= 0 {
		return
	}
	if err := c.Stock.Unlock(ctx, skuID, identity, count); err != nil {
		zap.S().Warnf("释放库存失败 %s %s: %v", identity, skuID, err)
	}
}

func (c *CartServer) unlockItems(ctx context.Context, identity string, items []model.CartItem) {
	for _, item := range items {
		c.unlockStock(ctx, identity, item.SkuID, item.Count)
	}
}

func (c *CartServer) resetStockLockTime(ctx context.Context, identity string, until time.Time) {
	skuIDs, err := c.Store.GetSkuIDs(ctx, identity, false)
	if err != nil {
		zap.S().Warnf("延长库存锁定时间失败 %s: %v", identity, err)
		return
	}
	for _, skuID := range skuIDs {
		if err := c.Stock.UpdateLockTime(ctx, skuID, identity, until); err != nil {
			zap.S().Warnf("延长库存锁定时间失败 %s %s: %v", identity, skuID, err)
		}
	}
}
