package store

import (
	"context"

	"github.com/go-redis/redis/v8"
)

//一组命令放在 MULTI/EXEC 里执行，外部读者要么看到执行前的状态，要么看到全部执行后的状态。
//失败直接返回，不在这里重试。
func atomicBatch(ctx context.Context, client redis.UniversalClient, fn func(pipe redis.Pipeliner) error) ([]redis.Cmder, error) {
	return client.TxPipelined(ctx, fn)
}
