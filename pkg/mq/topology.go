package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeName 领域事件（入站支付事件与出站 outbox 事件共用）
	ExchangeName = "civicfund.events"
	// DLQExchangeName 消费失败且不可重试的原始消息
	DLQExchangeName = "civicfund.dlq"
)

// NewConnection 连接 RabbitMQ
func NewConnection(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// openChannel 建立连接并声明两个 durable topic exchange
func openChannel(url string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	for _, name := range []string{ExchangeName, DLQExchangeName} {
		if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}
	return conn, ch, nil
}

// DeadLetterQueueName 例：pledge.created → civicfund.pledge.created.dlq
func DeadLetterQueueName(routingKey string) string {
	return "civicfund." + routingKey + ".dlq"
}
