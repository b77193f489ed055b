package initialize

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"shopcart_srvs/cart_srv/config"
	"shopcart_srvs/cart_srv/global"
)

func NewRedisClient(c config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password: c.Password,
		DB:       c.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

//整个服务共用一个redis连接池
func InitRedis() {
	client, err := NewRedisClient(global.ServerConfig.RedisInfo)
	if err != nil {
		zap.S().Fatalf("连接redis失败: %s", err)
	}
	global.RedisClient = client
}
