package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"resume-intel-go/internal/agent"
	"resume-intel-go/internal/api/handler"
	"resume-intel-go/internal/api/router"
	"resume-intel-go/internal/config"
	"resume-intel-go/internal/enrichment"
	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/normalizer"
	"resume-intel-go/internal/outbox"
	"resume-intel-go/internal/parser"
	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/storage"
	"resume-intel-go/internal/tracing"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置文件失败")
	}

	// 2. 初始化日志系统，Hertz框架日志也走zerolog
	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	logger.Logger = logger.Logger.With().Str("app", "resume-intel").Logger()
	hlog.SetLogger(hertzzerolog.From(logger.Logger))

	// 3. 初始化链路追踪
	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, &cfg.Tracing)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("关闭链路追踪失败")
		}
	}()

	// 4. 初始化存储管理器
	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储管理器失败")
	}
	defer storageManager.Close()
	if storageManager.MySQL == nil || storageManager.MinIO == nil || storageManager.Redis == nil {
		logger.Fatal().Msg("MySQL/MinIO/Redis为必需组件，存在未就绪项")
	}

	// 5. 初始化LLM客户端与流水线能力组件
	llm, err := agent.NewAliyunQwenChatModel(cfg.Aliyun.APIKey, cfg.Aliyun.Model, cfg.Aliyun.APIURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化LLM客户端失败")
	}

	docNormalizer, err := normalizer.New(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化文档归一化器失败")
	}

	extractor := parser.NewLLMResumeExtractor(llm,
		parser.WithExtractorTimeout(config.GetDuration(cfg.Extractor.ExtractionTimeout, 60*time.Second)),
	)
	scorer := parser.NewScoringEngine()
	improver := parser.NewLLMImprover(llm,
		parser.WithImproverTimeout(config.GetDuration(cfg.Improver.SuggestTimeout, 60*time.Second)),
		parser.WithMaxSuggestions(cfg.Improver.MaxSuggestions),
	)

	// 6. 事务性发件箱与消息中继
	publisher := storage.NewOutboxPublisher(storageManager.MySQL.DB(), &cfg.RabbitMQ)
	var relay *outbox.MessageRelay
	if storageManager.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ,
			outbox.WithPollingInterval(config.GetDuration(cfg.RabbitMQ.RetryInterval, 5*time.Second)),
		)
		relay.Start()
		defer relay.Stop()
	} else {
		logger.Warn().Msg("RabbitMQ未就绪，发件箱消息中继不启动")
	}

	// 7. 流水线协调器
	coordinator := pipeline.NewCoordinator(
		docNormalizer,
		extractor,
		scorer,
		improver,
		storageManager.MySQL,
		storageManager.MinIO,
		storageManager.Redis,
		publisher,
		pipeline.WithProviderTimeout(config.GetDuration(cfg.Pipeline.ProviderTimeout, 60*time.Second)),
		pipeline.WithRetryBackoff(config.GetDuration(cfg.Pipeline.RetryBackoff, 2*time.Second)),
	)

	// 8. 外部数据服务
	enrichSvc := enrichment.NewService(
		storageManager.Redis,
		[]enrichment.StatsFetcher{
			enrichment.NewGitHubFetcher(cfg.Enrichment.GitHubAPIURL, cfg.Enrichment.GitHubToken),
			enrichment.NewLeetCodeFetcher(cfg.Enrichment.LeetCodeAPIURL),
		},
		enrichment.WithTTL(config.GetDuration(cfg.Enrichment.CacheTTL, 6*time.Hour)),
		enrichment.WithFetchTimeout(config.GetDuration(cfg.Enrichment.FetchTimeout, 10*time.Second)),
	)

	// 9. HTTP服务器
	serverTracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.Default(
		server.WithHostPorts(cfg.Server.Address),
		serverTracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	pipelineHandler := handler.NewPipelineHandler(cfg, coordinator, enrichSvc)
	router.RegisterRoutes(h, cfg, pipelineHandler)

	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()
	logger.Info().Str("address", cfg.Server.Address).Msg("HTTP服务器已启动")

	// 10. 等待终止信号后优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}
	logger.Info().Msg("优雅退出完成")
}
