package initialize

import (
	"fmt"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/producer"

	"shopcart_srvs/cart_srv/config"
)

//购物车过期消息的producer
func InitProducer(c config.RocketMQConfig) (rocketmq.Producer, error) {
	group := c.Group
	if group == "" {
		group = "mxshop-cart"
	}
	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{fmt.Sprintf("%s:%d", c.Host, c.Port)}),
		producer.WithGroupName(group),
		producer.WithRetry(2),
	)
	if err != nil {
		return nil, fmt.Errorf("生成producer失败: %w", err)
	}
	if err = p.Start(); err != nil {
		return nil, fmt.Errorf("启动producer失败: %w", err)
	}
	return p, nil
}
