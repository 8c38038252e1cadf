package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"resume-intel-go/internal/config"
	"resume-intel-go/internal/logger"
)

// MessageQueue 消息队列接口
type MessageQueue interface {
	// PublishMessage 发布消息
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error

	// PublishJSON 发布JSON格式消息
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error

	// EnsureExchange 确保交换机存在
	EnsureExchange(exchangeName, exchangeType string, durable bool) error

	// EnsureQueue 确保队列存在
	EnsureQueue(queueName string, durable bool) error

	// BindQueue 绑定队列到交换机
	BindQueue(queueName, exchangeName, routingKey string) error

	// Close 关闭连接
	Close() error
}

// 确保RabbitMQ实现了MessageQueue接口
var _ MessageQueue = (*RabbitMQ)(nil)

// RabbitMQ 阶段完成事件的消息代理客户端
type RabbitMQ struct {
	conn         *amqp.Connection
	channelPool  sync.Pool
	exchangeMap  map[string]bool
	queueMap     map[string]bool
	bindingMap   map[string]bool // key格式: "exchange:queue:routingKey"
	publishMutex sync.Mutex
	cfg          *config.RabbitMQConfig
	log          zerolog.Logger
}

// NewRabbitMQ 创建RabbitMQ客户端并声明流水线交换机
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器 (%s): %w", cfg.URL, err)
	}

	mq := &RabbitMQ{
		conn:        conn,
		exchangeMap: make(map[string]bool),
		queueMap:    make(map[string]bool),
		bindingMap:  make(map[string]bool),
		cfg:         cfg,
		log:         logger.With("rabbitmq"),
	}

	log := mq.log
	mq.channelPool = sync.Pool{
		New: func() interface{} {
			ch, chErr := conn.Channel()
			if chErr != nil {
				log.Error().Err(chErr).Msg("创建RabbitMQ通道失败")
				return nil
			}
			return ch
		},
	}

	testCh := mq.getChannel()
	if testCh == nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道")
	}
	mq.putChannel(testCh)

	// 流水线事件统一走一个topic交换机
	if cfg.PipelineExchange != "" {
		if err := mq.EnsureExchange(cfg.PipelineExchange, "topic", true); err != nil {
			conn.Close()
			return nil, err
		}
	}

	mq.log.Info().Str("url", cfg.URL).Msg("RabbitMQ连接建立")
	return mq, nil
}

// getChannel 从池中获取可用通道
func (r *RabbitMQ) getChannel() *amqp.Channel {
	ch := r.channelPool.Get()
	if ch == nil {
		newCh, err := r.conn.Channel()
		if err != nil {
			r.log.Error().Err(err).Msg("创建新RabbitMQ通道失败")
			return nil
		}
		return newCh
	}
	return ch.(*amqp.Channel)
}

// putChannel 归还通道到池
func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureExchange 确保交换机存在
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	if _, exists := r.exchangeMap[exchangeName]; exists {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	err := ch.ExchangeDeclare(
		exchangeName,
		exchangeType,
		durable,
		false, // 自动删除
		false, // 内部专用
		false, // 非阻塞
		nil,
	)
	if err != nil {
		return fmt.Errorf("声明exchange失败: %w", err)
	}

	r.exchangeMap[exchangeName] = true
	r.log.Debug().Str("exchange", exchangeName).Str("type", exchangeType).Msg("交换机已就绪")
	return nil
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	if _, exists := r.queueMap[queueName]; exists {
		// 已在本地标记过的队列用被动声明校验其仍然存在
		if _, err := ch.QueueDeclarePassive(queueName, durable, false, false, false, nil); err != nil {
			delete(r.queueMap, queueName)
			return fmt.Errorf("被动声明队列 '%s' 失败: %w", queueName, err)
		}
		return nil
	}

	if _, err := ch.QueueDeclare(queueName, durable, false, false, false, nil); err != nil {
		return fmt.Errorf("声明队列失败: %w", err)
	}

	r.queueMap[queueName] = true
	return nil
}

// BindQueue 绑定队列到交换机
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	bindingKey := fmt.Sprintf("%s:%s:%s", exchangeName, queueName, routingKey)
	if _, exists := r.bindingMap[bindingKey]; exists {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("绑定队列到exchange失败: %w", err)
	}

	r.bindingMap[bindingKey] = true
	return nil
}

// PublishMessage 发布消息到交换机
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	var deliveryMode uint8 = 1
	if persistent {
		deliveryMode = 2
	}

	return ch.PublishWithContext(
		ctx,
		exchangeName,
		routingKey,
		false, // 强制
		false, // 立即
		amqp.Publishing{
			DeliveryMode: deliveryMode,
			ContentType:  "application/json",
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
}

// PublishJSON 发布JSON格式的消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}
	return r.PublishMessage(ctx, exchangeName, routingKey, jsonData, persistent)
}

// StartConsumer 启动队列消费者，handler 返回 true 确认消息，false 重新入队
func (r *RabbitMQ) StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (<-chan struct{}, error) {
	stopCh := make(chan struct{})

	ch := r.getChannel()
	if ch == nil {
		return nil, fmt.Errorf("无法获取RabbitMQ通道")
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName,
		"",    // 消费者标签由server生成
		false, // 手动确认
		false, // 独占
		false, // 非本地
		false, // 非阻塞
		nil,
	)
	if err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("注册消费者失败: %w", err)
	}

	go func() {
		defer r.putChannel(ch)
		r.log.Info().Str("queue", queueName).Int("prefetch", prefetchCount).Msg("消费者已启动")

		for {
			select {
			case <-stopCh:
				r.log.Info().Str("queue", queueName).Msg("消费者已停止")
				return
			case delivery, ok := <-deliveries:
				if !ok {
					r.log.Warn().Str("queue", queueName).Msg("RabbitMQ通道已关闭")
					return
				}
				if handler(delivery.Body) {
					if err := delivery.Ack(false); err != nil {
						r.log.Error().Err(err).Msg("确认消息失败")
					}
				} else {
					if err := delivery.Nack(false, true); err != nil {
						r.log.Error().Err(err).Msg("拒绝消息失败")
					}
				}
			}
		}
	}()

	return stopCh, nil
}
