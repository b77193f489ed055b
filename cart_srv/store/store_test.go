package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"shopcart_srvs/cart_srv/model"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func (c *fakeClock) Millis() int64 {
	return c.t.UnixNano() / int64(time.Millisecond)
}

func newTestStore(t *testing.T) (*CartStore, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	s := New(client, Options{Now: clock.Now})
	return s, mr, clock
}

func item(sku, goods string, count, addTime int64) model.CartItem {
	return model.CartItem{SkuID: sku, GoodsID: goods, Count: count, AddTime: addTime}
}

func skuIDsOf(items []model.CartItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.SkuID)
	}
	return ids
}

func TestCartStore_Scenario(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g1", 2, 100)))
	require.NoError(t, s.AddItem(ctx, "u1", item("s2", "g2", 3, 200)))

	skuTotal, err := s.GetSkuTotal(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(5), skuTotal)

	itemTotal, err := s.GetItemTotal(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(2), itemTotal)

	items, err := s.GetItemList(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []model.CartItem{
		item("s2", "g2", 3, 200),
		item("s1", "g1", 2, 100),
	}, items)
}

func TestCartStore_IndexAndDirectoryStayInStep(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("a", "g", 1, 1)))
	require.NoError(t, s.AddItem(ctx, "u1", item("b", "g", 1, 2)))
	require.NoError(t, s.DelItem(ctx, "u1", "a"))

	ids, err := s.GetSkuIDs(ctx, "u1", false)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, ids)

	fields, err := mr.HKeys("cart:infos:u1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"goodsId_b", "count_b", "addTime_b"}, fields)

	ok, err := s.IsExists(ctx, "u1", "a")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = s.IsExists(ctx, "u1", "b")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCartStore_AddItemAccumulatesCount(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g1", 2, 100)))
	require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g9", 5, 300)))

	got, err := s.GetItem(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Equal(t, item("s1", "g9", 7, 300), got)

	total, err := s.GetItemTotal(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestCartStore_DelItemAbsentSku(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g1", 2, 100)))
	before := mr.Dump()

	require.NoError(t, s.DelItem(ctx, "u1", "nope"))
	require.NoError(t, s.DelItem(ctx, "u2", "nope"))
	require.Equal(t, before, mr.Dump())
}

func TestCartStore_MissingItemIsZeroValue(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetItem(ctx, "ghost", "s1")
	require.NoError(t, err)
	require.Equal(t, model.CartItem{SkuID: "s1"}, got)

	items, err := s.GetItemList(ctx, "ghost")
	require.NoError(t, err)
	require.Empty(t, items)

	skuTotal, err := s.GetSkuTotal(ctx, "ghost")
	require.NoError(t, err)
	require.Zero(t, skuTotal)

	remain, err := s.GetEffectiveTime(ctx, "ghost")
	require.NoError(t, err)
	require.Zero(t, remain)

	status, err := s.GetStatus(ctx, "ghost")
	require.NoError(t, err)
	require.Equal(t, model.CartNoEffective, status)
}

func TestCartStore_FirstAddSeedsDeadline(t *testing.T) {
	s, mr, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g1", 1, 100)))

	status, err := s.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, model.CartEffective, status)

	remain, err := s.GetEffectiveTime(ctx, "u1")
	require.NoError(t, err)
	require.Greater(t, remain, int64(0))
	require.LessOrEqual(t, remain, DefaultTTL)

	//已有商品的购物车再加购，不会重置截止时间
	clock.Advance(10 * time.Minute)
	require.NoError(t, s.AddItem(ctx, "u1", item("s2", "g2", 1, 200)))
	score, err := mr.ZScore("cart:deadline", "u1")
	require.NoError(t, err)
	require.Equal(t, float64(clock.Millis()-10*60*1000+DefaultTTL), score)
}

func TestCartStore_IncreEffectiveTime(t *testing.T) {
	t.Run("extends a live deadline", func(t *testing.T) {
		s, _, clock := newTestStore(t)
		ctx := context.Background()
		require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g1", 1, 100)))

		deadline, err := s.IncreEffectiveTime(ctx, "u1", 60000)
		require.NoError(t, err)
		require.Equal(t, clock.Millis()+DefaultTTL+60000, deadline)
	})

	t.Run("expired deadline restarts from now", func(t *testing.T) {
		s, _, clock := newTestStore(t)
		ctx := context.Background()
		require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g1", 1, 100)))

		clock.Advance(time.Hour)
		status, err := s.GetStatus(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, model.CartNoEffective, status)

		deadline, err := s.IncreEffectiveTime(ctx, "u1", 60000)
		require.NoError(t, err)
		require.Equal(t, clock.Millis()+60000, deadline)

		remain, err := s.GetEffectiveTime(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, int64(60000), remain)
	})

	t.Run("unscheduled identity starts from now", func(t *testing.T) {
		s, _, clock := newTestStore(t)
		deadline, err := s.IncreEffectiveTime(context.Background(), "u1", 5000)
		require.NoError(t, err)
		require.Equal(t, clock.Millis()+5000, deadline)
	})
}

func TestCartStore_ResetEffectiveTime(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g1", 1, 100)))

	clock.Advance(20 * time.Minute)
	require.NoError(t, s.ResetEffectiveTime(ctx, "u1"))

	remain, err := s.GetEffectiveTime(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, DefaultTTL, remain)
}

func TestCartStore_ListExpired(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g1", 1, 100)))
	clock.Advance(time.Minute)
	require.NoError(t, s.AddItem(ctx, "u2", item("s1", "g1", 1, 100)))
	clock.Advance(time.Minute)
	require.NoError(t, s.AddItem(ctx, "u3", item("s1", "g1", 1, 100)))

	ids, err := s.ListExpired(ctx, clock.Now(), 0)
	require.NoError(t, err)
	require.Empty(t, ids)

	//u1、u2 的截止时间已过，u3 还差一分钟
	later := clock.Now().Add(time.Duration(DefaultTTL)*time.Millisecond - time.Minute)
	ids, err = s.ListExpired(ctx, later, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, ids)

	ids, err = s.ListExpired(ctx, later, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, ids)
}

func TestCartStore_IncreSkuCount(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g1", 2, 100)))

	n, err := s.IncreSkuCount(ctx, "u1", "s1", 3)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	n, err = s.IncreSkuCount(ctx, "u1", "s1", -5)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCartStore_Clear(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g1", 2, 100)))
	require.NoError(t, s.AddItem(ctx, "u2", item("s1", "g1", 2, 100)))

	require.NoError(t, s.Clear(ctx, "u1"))
	require.NoError(t, s.Clear(ctx, "u1"))

	require.False(t, mr.Exists("cart:skus:u1"))
	require.False(t, mr.Exists("cart:infos:u1"))
	members, err := mr.ZMembers("cart:deadline")
	require.NoError(t, err)
	require.Equal(t, []string{"u2"}, members)
}

func TestCartStore_ToHistory(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("A", "g", 1, 1)))
	require.NoError(t, s.AddItem(ctx, "u1", item("B", "g", 2, 2)))
	require.NoError(t, s.AddItem(ctx, "u1", item("C", "g", 3, 3)))
	before, err := s.GetItemList(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"C", "B", "A"}, skuIDsOf(before))

	require.NoError(t, s.ToHistory(ctx, "u1"))

	live, err := s.GetItemList(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, live)

	history, err := s.GetHistoryItemList(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, before, history)

	remain, err := s.GetEffectiveTime(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, remain)

	got, err := s.GetHistoryItem(ctx, "u1", "B")
	require.NoError(t, err)
	require.Equal(t, item("B", "g", 2, 2), got)

	ids, err := s.GetHistorySkuIDs(ctx, "u1", false)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, ids)
}

func TestCartStore_ToHistoryOverwritesPreviousHistory(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("old", "g", 1, 1)))
	require.NoError(t, s.ToHistory(ctx, "u1"))

	require.NoError(t, s.AddItem(ctx, "u1", item("new", "g", 4, 5)))
	require.NoError(t, s.ToHistory(ctx, "u1"))

	history, err := s.GetHistoryItemList(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []model.CartItem{item("new", "g", 4, 5)}, history)
}

func TestCartStore_ToHistoryEmptyCartKeepsHistory(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("old", "g", 1, 1)))
	require.NoError(t, s.ToHistory(ctx, "u1"))

	//空购物车但还挂着截止时间
	require.NoError(t, s.ResetEffectiveTime(ctx, "u1"))
	require.NoError(t, s.ToHistory(ctx, "u1"))

	history, err := s.GetHistoryItemList(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []model.CartItem{item("old", "g", 1, 1)}, history)
	require.False(t, mr.Exists("cart:deadline"))
}

func TestCartStore_ToHistoryDirectoryOnly(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("A", "g", 1, 1)))
	require.NoError(t, s.ToHistory(ctx, "u1"))

	//只有目录没有索引
	_, err := s.IncreSkuCount(ctx, "u1", "Z", 5)
	require.NoError(t, err)
	require.NoError(t, s.ToHistory(ctx, "u1"))

	require.False(t, mr.Exists("cart:history:skus:u1"))
	history, err := s.GetHistoryItemList(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, history)
	got, err := s.GetHistoryItem(ctx, "u1", "A")
	require.NoError(t, err)
	require.Equal(t, model.CartItem{SkuID: "A"}, got)

	require.False(t, mr.Exists("cart:infos:u1"))
	fields, err := mr.HKeys("cart:history:infos:u1")
	require.NoError(t, err)
	require.Equal(t, []string{"count_Z"}, fields)
}

func TestCartStore_ToHistoryIndexOnly(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("A", "g", 1, 1)))
	require.NoError(t, s.ToHistory(ctx, "u1"))

	//只有索引没有目录
	_, err := mr.ZAdd("cart:skus:u1", 2, "B")
	require.NoError(t, err)
	require.NoError(t, s.ToHistory(ctx, "u1"))

	require.False(t, mr.Exists("cart:skus:u1"))
	require.False(t, mr.Exists("cart:history:infos:u1"))
	ids, err := s.GetHistorySkuIDs(ctx, "u1", false)
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, ids)
}

func TestCartStore_ConcurrentFirstAdds(t *testing.T) {
	s, mr, clock := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		identity := fmt.Sprintf("u%d", i)
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, sku := range []string{"A", "B"} {
			wg.Add(1)
			go func(j int, sku string) {
				defer wg.Done()
				errs[j] = s.AddItem(ctx, identity, item(sku, "g", 1, int64(j)))
			}(j, sku)
		}
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		ids, err := s.GetSkuIDs(ctx, identity, false)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"A", "B"}, ids)
		score, err := mr.ZScore("cart:deadline", identity)
		require.NoError(t, err)
		require.Equal(t, float64(clock.Millis()+DefaultTTL), score)
	}
	members, err := mr.ZMembers("cart:deadline")
	require.NoError(t, err)
	require.Len(t, members, 20)
}

func TestCartStore_HistoryItemOps(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "u1", item("A", "g", 1, 1)))
	require.NoError(t, s.AddItem(ctx, "u1", item("B", "g", 1, 2)))
	require.NoError(t, s.ToHistory(ctx, "u1"))

	require.NoError(t, s.DelHistoryItem(ctx, "u1", "A"))
	require.NoError(t, s.DelHistoryItem(ctx, "u1", "A"))
	history, err := s.GetHistoryItemList(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, skuIDsOf(history))

	require.NoError(t, s.ClearHistory(ctx, "u1"))
	history, err = s.GetHistoryItemList(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestCartStore_KeyPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := New(client, Options{Prefix: "shop"})
	require.NoError(t, s.AddItem(context.Background(), "u1", item("s1", "g1", 1, 1)))
	require.True(t, mr.Exists("shop:skus:u1"))
	require.True(t, mr.Exists("shop:infos:u1"))
	require.True(t, mr.Exists("shop:deadline"))
}

func TestCartStore_Unavailable(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddItem(ctx, "u1", item("s1", "g1", 2, 100)))
	before := mr.Dump()

	mr.SetError("ERR connection refused")
	err := s.ToHistory(ctx, "u1")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrStoreUnavailable))

	var storeError *Error
	require.True(t, errors.As(err, &storeError))
	require.Equal(t, "to history", storeError.Op)

	require.True(t, errors.Is(s.AddItem(ctx, "u1", item("s2", "g", 1, 1)), ErrStoreUnavailable))
	_, err = s.IncreSkuCount(ctx, "u1", "s1", 1)
	require.True(t, errors.Is(err, ErrStoreUnavailable))
	_, err = s.GetItemList(ctx, "u1")
	require.True(t, errors.Is(err, ErrStoreUnavailable))
	_, err = s.IncreEffectiveTime(ctx, "u1", 1000)
	require.True(t, errors.Is(err, ErrStoreUnavailable))

	mr.SetError("")
	require.Equal(t, before, mr.Dump())
}
