package sweeper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/rocketmq-client-go/v2/primitive"
)

//rocketmq.Producer 里用到的部分
type MessageSender interface {
	SendSync(ctx context.Context, mq ...*primitive.Message) (*primitive.SendResult, error)
}

type MQPublisher struct {
	sender MessageSender
	topic  string
}

func NewMQPublisher(sender MessageSender, topic string) *MQPublisher {
	if topic == "" {
		topic = "cart_expired"
	}
	return &MQPublisher{sender: sender, topic: topic}
}

func (p *MQPublisher) Publish(ctx context.Context, msg ExpiredMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	m := primitive.NewMessage(p.topic, body).WithKeys([]string{msg.Identity})
	res, err := p.sender.SendSync(ctx, m)
	if err != nil {
		return err
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("send %s: status %d", p.topic, res.Status)
	}
	return nil
}
