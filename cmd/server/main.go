// Package main 是应用程序的入口点。
package main

import (
	"context"
	"crypto/md5"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"doc-qa-go/internal/config"
	"doc-qa-go/internal/extract"
	"doc-qa-go/internal/handler"
	"doc-qa-go/internal/middleware"
	"doc-qa-go/internal/pipeline"
	"doc-qa-go/internal/repository"
	"doc-qa-go/internal/service"
	"doc-qa-go/pkg/database"
	"doc-qa-go/pkg/embedding"
	"doc-qa-go/pkg/es"
	"doc-qa-go/pkg/kafka"
	"doc-qa-go/pkg/llm"
	"doc-qa-go/pkg/log"
	"doc-qa-go/pkg/storage"
	"doc-qa-go/pkg/tasks"
	"doc-qa-go/pkg/tika"
)

func main() {
	// 1. 初始化配置
	cfg, err := config.Load("./configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储、向量索引与消息队列
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatalf("MySQL 初始化失败: %v", err)
	}
	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatalf("Redis 初始化失败: %v", err)
	}
	objectStore, err := storage.New(cfg.MinIO)
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}
	esStore, err := es.New(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatalf("Elasticsearch 初始化失败: %v", err)
	}
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 4. 初始化 Repository
	docRepo := repository.NewDocumentRepository(db)
	embRepo := repository.NewEmbeddingRepository(db)
	queryRepo := repository.NewQueryRecordRepository(db)

	// 5. 初始化外部模型客户端与文本提取注册表
	embeddingClient, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		log.Fatalf("Embedding 客户端初始化失败: %v", err)
	}
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Fatalf("LLM 客户端初始化失败: %v", err)
	}
	registry := extract.NewDefaultRegistry()
	if cfg.Tika.ServerURL != "" {
		// 配置了 Tika 时，PDF 与 Office 文档交给 Tika 解析
		registry.RegisterTika(tika.NewClient(cfg.Tika))
		log.Infof("Tika 提取器已启用: %s", cfg.Tika.ServerURL)
	}

	// 6. 初始化文档摄取管道 (Processor) 与 Service
	processor := pipeline.NewProcessor(
		objectStore,
		registry,
		embeddingClient,
		docRepo,
		embRepo,
		esStore,
		cfg.Pipeline,
		cfg.Embedding.Model,
	)
	ingestService := service.NewIngestService(processor, registry, objectStore, producer)
	queryService := service.NewQueryService(embeddingClient, esStore, docRepo, queryRepo, llmClient, cfg.Query)
	documentService := service.NewDocumentService(docRepo, embRepo, esStore, objectStore)

	// 7. 启动后台 Kafka 消费者与种子目录导入
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go kafka.StartConsumer(rootCtx, cfg.Kafka, kafka.ProcessorFunc(func(ctx context.Context, task tasks.IngestTask) error {
		_, err := processor.Process(ctx, task)
		return err
	}), rdb)
	if cfg.Pipeline.SeedDir != "" {
		go importSeedFiles(rootCtx, cfg.Pipeline.SeedDir, ingestService, rdb)
	}

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	ingestHandler := handler.NewIngestHandler(ingestService)
	queryHandler := handler.NewQueryHandler(queryService)
	documentHandler := handler.NewDocumentHandler(documentService)
	chatHandler := handler.NewChatHandler(queryService)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/ingest", ingestHandler.Ingest)
		apiV1.POST("/query", queryHandler.Query)

		upload := apiV1.Group("/upload")
		{
			upload.POST("", ingestHandler.Upload)
			upload.GET("/supported-types", ingestHandler.SupportedTypes)
		}

		documents := apiV1.Group("/documents")
		{
			documents.GET("", documentHandler.List)
			documents.DELETE("/:id", documentHandler.Delete)
		}

		apiV1.GET("/analytics/queries", queryHandler.RecentQueries)
	}
	r.GET("/chat/stream", chatHandler.Handle)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// importSeedFiles 扫描目录下文件并通过标准上传流程导入（幂等）。
// 以文件内容 MD5 作为幂等键，已导入过的文件重启后不会重复入队。
func importSeedFiles(ctx context.Context, dir string, ingestSvc service.IngestService, rdb *redis.Client) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("importSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("importSeedFiles: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		if len(data) == 0 {
			log.Infof("importSeedFiles: 空文件跳过: %s", path)
			return nil
		}

		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			log.Warnf("importSeedFiles: 无法识别类型, 跳过: %s", path)
			return nil
		}

		// 幂等检查：同一内容只导入一次
		fileMD5 := fmt.Sprintf("%x", md5.Sum(data))
		ok, err := rdb.SetNX(ctx, "seed:"+fileMD5, info.Name(), 0).Result()
		if err != nil {
			log.Warnf("importSeedFiles: 幂等检查失败: %s, err=%v", path, err)
			return nil
		}
		if !ok {
			log.Infof("importSeedFiles: 已导入过，跳过: %s (md5=%s)", info.Name(), fileMD5)
			return nil
		}

		objectKey, err := ingestSvc.Upload(ctx, info.Name(), mimeType, data)
		if err != nil {
			// 导入失败时释放幂等键，下次启动重试
			rdb.Del(ctx, "seed:"+fileMD5)
			log.Warnf("importSeedFiles: 导入失败: %s, err=%v", path, err)
			return nil
		}
		log.Infof("importSeedFiles: 已入队: %s -> %s", info.Name(), objectKey)
		return nil
	})
	if walkErr != nil && walkErr != context.Canceled {
		log.Warnf("importSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
}
