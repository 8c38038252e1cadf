// Package outbox 实现事务发件箱的后台投递中继。
package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/storage"
	"resume-intel-go/internal/storage/models"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	maxRetryCount          = 5
)

// MessageRelay 轮询 outbox_messages 表并把待投递消息发布到消息代理。
// 取批使用 FOR UPDATE SKIP LOCKED，多实例部署时互不抢占同一批行。
type MessageRelay struct {
	db              *gorm.DB
	publisher       *storage.RabbitMQ
	log             zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{}
	tracer          trace.Tracer
}

// RelayOption 中继的配置选项
type RelayOption func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) RelayOption {
	return func(r *MessageRelay) {
		r.pollingInterval = d
	}
}

// WithBatchSize 设置单次轮询处理的消息数上限
func WithBatchSize(n int) RelayOption {
	return func(r *MessageRelay) {
		r.batchSize = n
	}
}

// NewMessageRelay 创建发件箱投递中继
func NewMessageRelay(db *gorm.DB, publisher *storage.RabbitMQ, options ...RelayOption) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		log:             logger.With("outbox_relay"),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("resume-intel-go/outbox"),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Start 启动后台轮询
func (r *MessageRelay) Start() {
	r.log.Info().Dur("interval", r.pollingInterval).Msg("发件箱中继启动")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		for {
			select {
			case <-r.done:
				ticker.Stop()
				r.log.Info().Msg("发件箱中继已停止")
				return
			case <-ticker.C:
				if err := r.processPendingMessages(context.Background()); err != nil {
					r.log.Error().Err(err).Msg("处理待投递消息失败")
				}
			}
		}
	}()
}

// Stop 停止中继
func (r *MessageRelay) Stop() {
	close(r.done)
}

// processPendingMessages 取一批待投递消息，逐条发布并回写状态
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	// SKIP LOCKED 跳过被其他实例锁定的行
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", "PENDING").
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return err
	}

	if len(messages) == 0 {
		return tx.Commit().Error
	}

	// 空轮询不产生span，只有实际处理批次时才追踪
	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(
			attribute.Int("messaging.batch.message_count", len(messages)),
		),
	)
	defer span.End()

	for _, msg := range messages {
		err := r.publisher.PublishMessage(
			ctx,
			msg.TargetExchange,
			msg.TargetRoutingKey,
			[]byte(msg.Payload),
			true,
		)

		if err != nil {
			r.log.Warn().Err(err).
				Uint64("message_id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Int("retries", msg.RetryCount+1).
				Msg("消息投递失败")
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= maxRetryCount {
				msg.Status = "FAILED"
			}
		} else {
			msg.Status = "SENT"
			now := time.Now()
			msg.ProcessedAt = &now
			msg.ErrorMessage = ""
		}

		// 回写失败则整批回滚，下次轮询重新拾取
		if err := tx.Save(&msg).Error; err != nil {
			return err
		}
	}

	return tx.Commit().Error
}
