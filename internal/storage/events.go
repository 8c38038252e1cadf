package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"resume-intel-go/internal/config"
	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/storage/models"
)

// 确保OutboxPublisher实现了事件发布接口
var _ pipeline.EventPublisher = (*OutboxPublisher)(nil)

// OutboxPublisher 基于事务发件箱的事件发布器。
// 发布只是往 outbox_messages 插一行，真正的投递由后台中继完成，
// 消息代理短暂不可用不会丢事件。
type OutboxPublisher struct {
	db           *gorm.DB
	exchange     string
	extractedKey string
	analyzedKey  string
	log          zerolog.Logger
}

// NewOutboxPublisher 创建发件箱事件发布器
func NewOutboxPublisher(db *gorm.DB, cfg *config.RabbitMQConfig) *OutboxPublisher {
	return &OutboxPublisher{
		db:           db,
		exchange:     cfg.PipelineExchange,
		extractedKey: cfg.ExtractedRoutingKey,
		analyzedKey:  cfg.AnalyzedRoutingKey,
		log:          logger.With("outbox_publisher"),
	}
}

// PublishExtracted 发布提取完成事件
func (p *OutboxPublisher) PublishExtracted(ctx context.Context, resumeID string) error {
	msg := ResumeExtractedMessage{
		ResumeID:   resumeID,
		OccurredAt: time.Now(),
	}

	// 尽量带上内容哈希与文本路径，查不到也不阻断发布
	var record models.ResumeRecord
	if err := p.db.WithContext(ctx).
		Select("content_hash", "normalized_text_path_oss").
		First(&record, "resume_id = ?", resumeID).Error; err == nil {
		msg.ContentHash = record.ContentHash
		msg.TextPathOSS = record.NormalizedTextPathOSS
	}

	return p.enqueue(ctx, resumeID, p.extractedKey, msg)
}

// PublishAnalyzed 发布分析完成事件
func (p *OutboxPublisher) PublishAnalyzed(ctx context.Context, resumeID string) error {
	msg := ResumeAnalyzedMessage{
		ResumeID:   resumeID,
		OccurredAt: time.Now(),
	}

	var record models.AnalysisRecord
	err := p.db.WithContext(ctx).
		Where("resume_id = ?", resumeID).
		Order("evaluated_at desc").
		First(&record).Error
	if err == nil {
		msg.ATSScore = record.ATSScore
		msg.RoleMatch = record.RoleMatch
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		p.log.Warn().Err(err).Str("resume_id", resumeID).Msg("读取分析记录失败")
	}

	return p.enqueue(ctx, resumeID, p.analyzedKey, msg)
}

// enqueue 往发件箱插入一条待投递消息
func (p *OutboxPublisher) enqueue(ctx context.Context, aggregateID, routingKey string, payload interface{}) error {
	if p.exchange == "" || routingKey == "" {
		// 未配置消息代理时事件发布是空操作
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件消息失败: %w", err)
	}

	row := models.OutboxMessage{
		AggregateID:      aggregateID,
		EventType:        routingKey,
		Payload:          string(data),
		TargetExchange:   p.exchange,
		TargetRoutingKey: routingKey,
		Status:           "PENDING",
	}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("写入发件箱失败: %w", err)
	}
	return nil
}
