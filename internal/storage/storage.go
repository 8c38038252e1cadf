package storage

import (
	"context"
	"fmt"
	"strings"

	"resume-intel-go/internal/config"
	"resume-intel-go/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 对象存储
	MinIO *MinIO

	// 消息队列
	RabbitMQ *RabbitMQ

	// 关系型数据库
	MySQL *MySQL

	// 键值存储
	Redis *Redis
}

// NewStorage 创建存储管理器，按配置逐个初始化组件。
// 单个组件失败只记警告，全部失败才返回错误。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	log := logger.With("storage")
	storage := &Storage{}
	var err error
	var initErrors []string

	storage.MinIO, err = NewMinIO(&cfg.MinIO)
	if err != nil {
		log.Warn().Err(err).Msg("初始化MinIO失败")
		initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
	}

	if cfg.RabbitMQ.URL != "" {
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			log.Warn().Err(err).Msg("初始化RabbitMQ失败")
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		}
	}

	if cfg.MySQL.Host != "" {
		storage.MySQL, err = NewMySQL(&cfg.MySQL)
		if err != nil {
			log.Warn().Err(err).Msg("初始化MySQL失败")
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		}
	}

	if cfg.Redis.Address != "" {
		storage.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("初始化Redis失败")
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		}
	}

	if storage.MinIO == nil && storage.RabbitMQ == nil && storage.MySQL == nil && storage.Redis == nil {
		return nil, fmt.Errorf("所有存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}
	if len(initErrors) > 0 {
		log.Warn().Str("components", strings.Join(initErrors, "; ")).Msg("部分存储组件初始化失败")
	}

	return storage, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	log := logger.With("storage")

	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
	// MinIO客户端无需显式关闭
}
