package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"resume-intel-go/internal/config"
	"resume-intel-go/internal/constants"
	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/storage/models"
	"resume-intel-go/internal/types"
)

var mysqlTracer = otel.Tracer("resume-intel-go/storage/mysql")

// GormTracingPlugin GORM插件，为数据库操作生成OpenTelemetry追踪点
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 为各类CRUD操作注册前后回调
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after())
}

type gormSpanKey struct{}

// before 在GORM操作前开启span
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)
		db.Statement.Context = context.WithValue(newCtx, gormSpanKey{}, span)
	}
}

// after 在GORM操作后结束span并记录结果
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				// 记录不存在属于正常业务分支
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
			return
		}
		span.SetStatus(codes.Ok, "")
	}
}

// NewGormTracingPlugin 创建GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer: mysqlTracer,
		dbName: dbName,
	}
}

// 确保MySQL实现了简历主数据存储接口
var _ pipeline.ResumeStore = (*MySQL)(nil)

// MySQL 简历主数据的关系库存储
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
	log zerolog.Logger
}

// NewMySQL 创建MySQL客户端并迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel gormlogger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = gormlogger.Silent
	case 2:
		logLevel = gormlogger.Error
	case 3:
		logLevel = gormlogger.Warn
	default:
		logLevel = gormlogger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	m := &MySQL{
		db:  db,
		cfg: cfg,
		log: logger.With("mysql"),
	}
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}
	return m, nil
}

// autoMigrateSchema 静默迁移所有表结构
func (m *MySQL) autoMigrateSchema() error {
	silentLogger := gormlogger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Silent,
			IgnoreRecordNotFoundError: true,
		},
	)
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	return silentDB.AutoMigrate(
		&models.ResumeRecord{},
		&models.AnalysisRecord{},
		&models.ImprovementRecord{},
		&models.EnrichmentStatRecord{},
		&models.OutboxMessage{},
	)
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// SaveResume 持久化新简历及其初始状态
func (m *MySQL) SaveResume(ctx context.Context, resume *types.Resume, status string) error {
	record := &models.ResumeRecord{
		ResumeID:         resume.ResumeID,
		OwnerID:          resume.OwnerID,
		FileType:         string(resume.FileType),
		RawPathOSS:       resume.RawPath,
		ContentHash:      resume.ContentHash,
		PipelineStatus:   status,
		ExtractorVersion: constants.DefaultExtractorVer,
		CreatedAt:        resume.CreatedAt,
	}
	return m.db.WithContext(ctx).Create(record).Error
}

// GetResume 读取简历与当前流水线状态，不存在时返回 (nil, "", nil)
func (m *MySQL) GetResume(ctx context.Context, resumeID string) (*types.Resume, string, error) {
	var record models.ResumeRecord
	err := m.db.WithContext(ctx).First(&record, "resume_id = ?", resumeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("查询简历失败: %w", err)
	}

	resume := &types.Resume{
		ResumeID:    record.ResumeID,
		OwnerID:     record.OwnerID,
		FileType:    types.FileType(record.FileType),
		RawPath:     record.RawPathOSS,
		ContentHash: record.ContentHash,
		CreatedAt:   record.CreatedAt,
	}
	if len(record.StructuredJSON) > 0 {
		var structured types.StructuredResume
		if err := json.Unmarshal(record.StructuredJSON, &structured); err != nil {
			return nil, "", fmt.Errorf("反序列化结构化简历失败: %w", err)
		}
		resume.Structured = &structured
	}
	if len(record.FormatStatsJSON) > 0 {
		var stats types.FormatStats
		if err := json.Unmarshal(record.FormatStatsJSON, &stats); err != nil {
			return nil, "", fmt.Errorf("反序列化版式统计失败: %w", err)
		}
		resume.FormatStats = &stats
	}
	return resume, record.PipelineStatus, nil
}

// UpdateStructured 写入结构化提取结果与归一化文本路径
func (m *MySQL) UpdateStructured(ctx context.Context, resumeID string, structured *types.StructuredResume, stats *types.FormatStats, textPath string) error {
	updates := map[string]interface{}{}

	structuredJSON, err := models.ToJSON(structured)
	if err != nil {
		return fmt.Errorf("序列化结构化简历失败: %w", err)
	}
	updates["structured_json"] = structuredJSON

	if stats != nil {
		statsJSON, err := models.ToJSON(stats)
		if err != nil {
			return fmt.Errorf("序列化版式统计失败: %w", err)
		}
		updates["format_stats_json"] = statsJSON
	}
	if textPath != "" {
		updates["normalized_text_path_oss"] = textPath
	}

	return m.db.WithContext(ctx).Model(&models.ResumeRecord{}).
		Where("resume_id = ?", resumeID).Updates(updates).Error
}

// UpdateStatus 更新流水线状态。缓存命中等路径允许跳过中间态，
// 非常规跳转只记日志不拦截。
func (m *MySQL) UpdateStatus(ctx context.Context, resumeID, status string) error {
	var record models.ResumeRecord
	if err := m.db.WithContext(ctx).Select("pipeline_status").
		First(&record, "resume_id = ?", resumeID).Error; err == nil {
		if record.PipelineStatus != status && !constants.CanTransition(record.PipelineStatus, status) {
			m.log.Debug().
				Str("resume_id", resumeID).
				Str("from", record.PipelineStatus).
				Str("to", status).
				Msg("状态机非常规跳转")
		}
	}

	return m.db.WithContext(ctx).Model(&models.ResumeRecord{}).
		Where("resume_id = ?", resumeID).Update("pipeline_status", status).Error
}

// SaveAnalysis 持久化分析结果，相同 (简历, JD哈希) 的重算覆盖旧行
func (m *MySQL) SaveAnalysis(ctx context.Context, result *types.AnalysisResult) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.SaveAnalysis",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.sql.table", "analysis_results"),
		attribute.String("resume_id", result.ResumeID),
	)

	feedbackJSON, err := models.ToJSON(result.ATSFeedback)
	if err != nil {
		return fmt.Errorf("序列化评分反馈失败: %w", err)
	}
	matchedJSON, err := models.ToJSON(result.MatchedKeywords)
	if err != nil {
		return fmt.Errorf("序列化命中关键词失败: %w", err)
	}
	missingJSON, err := models.ToJSON(result.MissingKeywords)
	if err != nil {
		return fmt.Errorf("序列化缺失关键词失败: %w", err)
	}
	warningsJSON, err := models.ToJSON(result.Warnings)
	if err != nil {
		return fmt.Errorf("序列化警告失败: %w", err)
	}

	record := models.AnalysisRecord{
		ResumeID:            result.ResumeID,
		JDHash:              result.JDHash,
		ATSScore:            result.ATSScore,
		ATSFeedbackJSON:     feedbackJSON,
		RoleMatch:           result.RoleMatch,
		MatchedKeywordsJSON: matchedJSON,
		MissingKeywordsJSON: missingJSON,
		WarningsJSON:        warningsJSON,
		EvaluatedAt:         result.EvaluatedAt,
	}

	err = m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "resume_id"}, {Name: "jd_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"ats_score", "ats_feedback_json", "role_match",
			"matched_keywords_json", "missing_keywords_json",
			"warnings_json", "evaluated_at",
		}),
	}).Create(&record).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// SaveImprovements 持久化改进建议，整批替换该简历的旧建议
func (m *MySQL) SaveImprovements(ctx context.Context, resumeID string, improvements []types.Improvement) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("resume_id = ?", resumeID).
			Delete(&models.ImprovementRecord{}).Error; err != nil {
			return fmt.Errorf("清理旧建议失败: %w", err)
		}
		if len(improvements) == 0 {
			return nil
		}

		records := make([]models.ImprovementRecord, len(improvements))
		for i, imp := range improvements {
			records[i] = models.ImprovementRecord{
				ResumeID:     resumeID,
				Section:      string(imp.Section),
				Category:     string(imp.Category),
				Suggestion:   imp.Suggestion,
				OriginalText: imp.OriginalText,
				Rank:         imp.Rank,
			}
		}
		return tx.Create(&records).Error
	})
}

// SaveEnrichmentStats 落库外部数据统计，同 (用户, 数据源) 覆盖
func (m *MySQL) SaveEnrichmentStats(ctx context.Context, stats *types.EnrichmentStats) error {
	metricsJSON, err := models.StringMapToJSON(stats.Metrics)
	if err != nil {
		return fmt.Errorf("序列化统计指标失败: %w", err)
	}
	record := models.EnrichmentStatRecord{
		UserID:      stats.UserID,
		Source:      stats.Source,
		MetricsJSON: metricsJSON,
		FetchedAt:   stats.FetchedAt,
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{"metrics_json", "fetched_at"}),
	}).Create(&record).Error
}
