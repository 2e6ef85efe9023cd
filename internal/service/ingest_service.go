package service

import (
	"context"
	"crypto/md5"
	"fmt"

	"doc-qa-go/internal/extract"
	"doc-qa-go/internal/pipeline"
	"doc-qa-go/pkg/log"
	"doc-qa-go/pkg/tasks"
)

// Uploader 是对象存储的写入端。
type Uploader interface {
	Upload(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// TaskQueue 是摄取任务队列的生产者端。
type TaskQueue interface {
	EnqueueIngest(ctx context.Context, task tasks.IngestTask) error
}

// IngestService 定义了文档摄取的入口操作。
type IngestService interface {
	// Ingest 同步执行一次摄取：fileURL 是存储相对路径（对象键）。
	Ingest(ctx context.Context, fileName, fileURL, fileType string) (*pipeline.Result, error)
	// Upload 将上传的原始字节写入对象存储并把摄取任务入队（异步路径）。
	Upload(ctx context.Context, fileName, mimeType string, data []byte) (string, error)
	// SupportedTypes 返回可摄取的 MIME 类型列表。
	SupportedTypes() []string
}

type ingestService struct {
	processor *pipeline.Processor
	registry  *extract.Registry
	uploader  Uploader
	queue     TaskQueue
}

// NewIngestService 创建一个新的 IngestService 实例。
func NewIngestService(processor *pipeline.Processor, registry *extract.Registry, uploader Uploader, queue TaskQueue) IngestService {
	return &ingestService{
		processor: processor,
		registry:  registry,
		uploader:  uploader,
		queue:     queue,
	}
}

// Ingest 同步运行摄取管道。重复摄取同一文件会生成一份新的独立文档，
// 系统不做内容去重（更新模型是重新上传，而不是就地更新）。
func (s *ingestService) Ingest(ctx context.Context, fileName, fileURL, fileType string) (*pipeline.Result, error) {
	task := tasks.IngestTask{
		ObjectKey: fileURL,
		FileName:  fileName,
		MimeType:  fileType,
	}
	return s.processor.Process(ctx, task)
}

// Upload 校验类型后将文件写入对象存储，并发送异步摄取任务。
// 对象键带内容 MD5 前缀，同名不同内容的文件互不覆盖。
func (s *ingestService) Upload(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	if !s.registry.Supports(mimeType) {
		return "", fmt.Errorf("%w: %s", extract.ErrUnsupportedType, mimeType)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("文件内容为空: %s", fileName)
	}

	objectKey := fmt.Sprintf("uploads/%x/%s", md5.Sum(data), fileName)
	if err := s.uploader.Upload(ctx, objectKey, data, mimeType); err != nil {
		return "", err
	}

	task := tasks.IngestTask{
		ObjectKey: objectKey,
		FileName:  fileName,
		MimeType:  mimeType,
	}
	if err := s.queue.EnqueueIngest(ctx, task); err != nil {
		return "", fmt.Errorf("摄取任务入队失败: %w", err)
	}
	log.Infof("[IngestService] 文件已上传并入队, object: %s", objectKey)
	return objectKey, nil
}

// SupportedTypes 返回可摄取的 MIME 类型列表。
func (s *ingestService) SupportedTypes() []string {
	return s.registry.SupportedTypes()
}
