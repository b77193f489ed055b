package global

import (
	"github.com/go-redis/redis/v8"

	"shopcart_srvs/cart_srv/config"
)

//定义全局变量，只在启动的时候赋值
var (
	ServerConfig config.ServerConfig
	NacosConfig  config.NacosConfig
	RedisClient  redis.UniversalClient
)
