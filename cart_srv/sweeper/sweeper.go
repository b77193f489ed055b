// Package sweeper archives carts whose deadline has passed and releases stock locks that
// nobody renewed. Several instances may run it; a redsync mutex lets one of them work per round.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"go.uber.org/zap"

	"shopcart_srvs/cart_srv/model"
)

const (
	mutexName     = "cart_sweep"
	unlockTimeout = 3 * time.Second
)

//别的实例正在扫
var ErrBusy = errors.New("cart sweep already running")

type Lister interface {
	ListExpired(ctx context.Context, before time.Time, limit int64) ([]string, error)
}

type Expirer interface {
	ExpireCart(ctx context.Context, identity string) ([]model.CartItem, bool, error)
}

type StockReleaser interface {
	UnlockExpired(ctx context.Context, before time.Time, limit int64) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, msg ExpiredMessage) error
}

//购物车过期消息
type ExpiredMessage struct {
	Identity  string   `json:"identity"`
	Skus      []string `json:"skus"`
	ExpiredAt int64    `json:"expired_at"` //毫秒
}

type Options struct {
	Batch      int64
	Interval   time.Duration
	LockExpiry time.Duration
	Now        func() time.Time
}

type Sweeper struct {
	carts   Lister
	expirer Expirer
	stock   StockReleaser
	pub     Publisher
	rs      *redsync.Redsync
	opts    Options
}

func New(carts Lister, expirer Expirer, stock StockReleaser, pub Publisher, rs *redsync.Redsync, opts Options) *Sweeper {
	if opts.Batch <= 0 {
		opts.Batch = 1000
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.LockExpiry <= 0 {
		opts.LockExpiry = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{carts: carts, expirer: expirer, stock: stock, pub: pub, rs: rs, opts: opts}
}

// Sweep archives every cart whose deadline is at or before the given time and returns how
// many were archived. A time in the future is clamped to now.
func (s *Sweeper) Sweep(ctx context.Context, before time.Time) (int, error) {
	if now := s.opts.Now(); before.After(now) {
		before = now
	}
	mutex := s.rs.NewMutex(mutexName, redsync.WithTries(1), redsync.WithExpiry(s.opts.LockExpiry))
	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer func() {
		//ctx可能已经取消，解锁单独给一个超时
		unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			zap.S().Warnf("释放购物车清理锁失败: %v", err)
		}
	}()

	archived := 0
	for {
		ids, err := s.carts.ListExpired(ctx, before, s.opts.Batch)
		if err != nil {
			return archived, err
		}
		for _, identity := range ids {
			items, ok, err := s.expirer.ExpireCart(ctx, identity)
			if err != nil {
				return archived, err
			}
			if !ok {
				//扫描期间被延长了
				continue
			}
			archived++
			s.publish(ctx, identity, items)
		}
		if int64(len(ids)) < s.opts.Batch {
			break
		}
	}

	released, err := s.stock.UnlockExpired(ctx, before, s.opts.Batch)
	if err != nil {
		return archived, err
	}
	zap.S().Infof("购物车清理完成，归档%d个，释放库存锁定%d条", archived, released)
	return archived, nil
}

func (s *Sweeper) publish(ctx context.Context, identity string, items []model.CartItem) {
	if s.pub == nil {
		return
	}
	msg := ExpiredMessage{
		Identity:  identity,
		Skus:      make([]string, 0, len(items)),
		ExpiredAt: s.opts.Now().UnixNano() / int64(time.Millisecond),
	}
	for _, item := range items {
		msg.Skus = append(msg.Skus, item.SkuID)
	}
	if err := s.pub.Publish(ctx, msg); err != nil {
		zap.S().Errorf("发送购物车过期消息失败 %s: %v", identity, err)
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, s.opts.Now()); err != nil {
				if errors.Is(err, ErrBusy) {
					zap.S().Debug("其他实例正在清理购物车")
					continue
				}
				zap.S().Errorf("清理过期购物车失败: %v", err)
			}
		}
	}
}
