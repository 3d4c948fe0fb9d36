package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DeclareDeadLetterQueue 绑定 routingKey 的死信队列；未绑定时 DLQ exchange 会直接丢弃消息
func (p *Publisher) DeclareDeadLetterQueue(routingKey string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, err := p.channel.QueueDeclare(DeadLetterQueueName(routingKey), true, false, false, false, nil)
	if err != nil {
		return "", fmt.Errorf("failed to declare dead letter queue for %s: %w", routingKey, err)
	}
	if err := p.channel.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return "", fmt.Errorf("failed to bind dead letter queue %s: %w", q.Name, err)
	}
	return q.Name, nil
}

// PublishToDLQ 原样转发消费失败的消息体，失败原因与处理器名写入消息头
func (p *Publisher) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError, failedAt string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx, DLQExchangeName, routingKey, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers: amqp091.Table{
				"x-original-error":       originalError,
				"x-failed-handler":       failedAt,
				"x-original-routing-key": routingKey,
			},
		},
	)
}
