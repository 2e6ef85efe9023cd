// Package pipeline 定义了文档摄取的核心流程：
// 下载 -> 提取文本 -> 持久化文档 -> 分块 -> 向量化 -> 批量入库与索引。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"doc-qa-go/internal/chunker"
	"doc-qa-go/internal/config"
	"doc-qa-go/internal/extract"
	"doc-qa-go/internal/model"
	"doc-qa-go/internal/repository"
	"doc-qa-go/pkg/embedding"
	"doc-qa-go/pkg/log"
	"doc-qa-go/pkg/tasks"
)

// Downloader 按存储键下载原始文件字节。
type Downloader interface {
	Download(ctx context.Context, objectKey string) ([]byte, error)
}

// VectorIndex 是分块向量的写入端。
type VectorIndex interface {
	IndexChunks(ctx context.Context, chunks []model.EsChunk) (int, error)
	DeleteByDocumentID(ctx context.Context, documentID uint) error
}

// Result 是一次成功摄取的报告。
type Result struct {
	DocumentID      uint `json:"documentId"`
	ChunksProcessed int  `json:"chunksProcessed"`
}

// Processor 封装了文档摄取的所有依赖和逻辑。
type Processor struct {
	downloader   Downloader
	registry     *extract.Registry
	embedder     embedding.Client
	docRepo      repository.DocumentRepository
	embRepo      repository.EmbeddingRepository
	index        VectorIndex
	cfg          config.PipelineConfig
	modelVersion string
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	downloader Downloader,
	registry *extract.Registry,
	embedder embedding.Client,
	docRepo repository.DocumentRepository,
	embRepo repository.EmbeddingRepository,
	index VectorIndex,
	cfg config.PipelineConfig,
	modelVersion string,
) *Processor {
	return &Processor{
		downloader:   downloader,
		registry:     registry,
		embedder:     embedder,
		docRepo:      docRepo,
		embRepo:      embRepo,
		index:        index,
		cfg:          cfg,
		modelVersion: modelVersion,
	}
}

// Process 执行一次完整的文档摄取。
// 下载失败与文档写入失败是致命的；单个分块的向量化失败只跳过该分块。
// 致命失败发生在文档行创建之后时，清理文档行与已索引分块，不留下不一致的部分文档。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) (*Result, error) {
	log.Infof("[Processor] 开始处理文件, Object: %s, FileName: %s, MimeType: %s", task.ObjectKey, task.FileName, task.MimeType)

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	// 1. 从对象存储下载原始字节
	data, err := p.downloader.Download(ctx, task.ObjectKey)
	if err != nil {
		log.Errorf("[Processor] 步骤1: 下载文件失败, Object: %s, Error: %v", task.ObjectKey, err)
		return nil, err
	}
	if len(data) == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", task.FileName)
		return nil, errors.New("文件内容为空")
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d 字节", len(data))

	// 2. 按声明的 MIME 类型分派文本提取器；未注册的类型直接拒绝
	textContent, err := p.registry.Extract(ctx, task.MimeType, data)
	if err != nil {
		log.Errorf("[Processor] 步骤2: 提取文本失败, MimeType: %s, Error: %v", task.MimeType, err)
		return nil, fmt.Errorf("提取文本失败: %w", err)
	}
	if textContent == "" {
		log.Warnf("[Processor] 提取的文本内容为空, 处理中止, FileName: %s", task.FileName)
		return nil, errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 持久化文档记录
	metadata := model.Metadata{"object_key": task.ObjectKey}
	for k, v := range task.Metadata {
		metadata[k] = v
	}
	doc := &model.Document{
		Name:     task.FileName,
		MimeType: task.MimeType,
		Content:  textContent,
		Metadata: metadata,
	}
	if err := p.docRepo.Create(doc); err != nil {
		log.Errorf("[Processor] 步骤3: 保存文档记录失败, Error: %v", err)
		return nil, err
	}
	log.Infof("[Processor] 步骤3: 文档记录已创建, DocumentID: %d", doc.ID)

	// 4. 按单词数分块
	chunks := chunker.Split(textContent, p.cfg.ChunkSize)
	log.Infof("[Processor] 步骤4: 文本分块完成, chunkSize: %d, 共 %d 个分块", p.cfg.ChunkSize, len(chunks))
	if len(chunks) == 0 {
		p.cleanup(ctx, doc.ID)
		return nil, errors.New("未生成任何文本分块")
	}

	// 5. 向量化：并发受限，单块失败跳过并继续
	embedded := p.embedChunks(ctx, chunks)
	log.Infof("[Processor] 步骤5: 向量化完成, 成功 %d/%d", len(embedded), len(chunks))

	// 6. 批量写入分块记录并索引向量
	rows := make([]*model.Embedding, 0, len(embedded))
	esChunks := make([]model.EsChunk, 0, len(embedded))
	now := time.Now()
	for _, e := range embedded {
		rows = append(rows, &model.Embedding{
			DocumentID: doc.ID,
			ChunkIndex: e.index,
			Content:    chunks[e.index],
			Dims:       len(e.vector),
		})
		esChunks = append(esChunks, model.EsChunk{
			ChunkID:      fmt.Sprintf("%d_%d", doc.ID, e.index),
			DocumentID:   doc.ID,
			ChunkIndex:   e.index,
			TextContent:  chunks[e.index],
			Vector:       e.vector,
			ModelVersion: p.modelVersion,
			CreatedAt:    now,
		})
	}

	if err := p.embRepo.BatchCreate(rows); err != nil {
		log.Errorf("[Processor] 步骤6: 批量保存分块记录失败, Error: %v", err)
		p.cleanup(ctx, doc.ID)
		return nil, err
	}

	indexed, err := p.index.IndexChunks(ctx, esChunks)
	if err != nil {
		log.Errorf("[Processor] 步骤6: 索引分块向量失败, Error: %v", err)
		p.cleanup(ctx, doc.ID)
		return nil, fmt.Errorf("索引分块向量失败: %w", err)
	}
	if indexed < len(esChunks) {
		// ES 批量写入不保证原子性，部分成功按非致命处理
		log.Warnf("[Processor] 向量索引部分成功: %d/%d", indexed, len(esChunks))
	}

	log.Infof("[Processor] 文件处理成功完成, DocumentID: %d, ChunksProcessed: %d", doc.ID, len(embedded))
	return &Result{DocumentID: doc.ID, ChunksProcessed: len(embedded)}, nil
}

type embeddedChunk struct {
	index  int
	vector []float32
}

// embedChunks 以受限并发对分块逐个向量化。失败的分块记录日志后跳过，
// 分块序号显式携带在结果中，不依赖完成顺序。
func (p *Processor) embedChunks(ctx context.Context, chunks []string) []embeddedChunk {
	workers := p.cfg.EmbedWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(chunks) {
		workers = len(chunks)
	}

	jobs := make(chan int)
	var mu sync.Mutex
	var embedded []embeddedChunk
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				vector, err := p.embedder.CreateEmbedding(ctx, chunks[i])
				if err != nil {
					log.Warnf("[Processor] 分块 %d 向量化失败, 跳过: %v", i, err)
					continue
				}
				mu.Lock()
				embedded = append(embedded, embeddedChunk{index: i, vector: vector})
				mu.Unlock()
			}
		}()
	}

	for i := range chunks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	sort.Slice(embedded, func(a, b int) bool { return embedded[a].index < embedded[b].index })
	return embedded
}

// cleanup 在致命失败后删除文档行、分块行与已索引的向量，
// 保证中止的摄取不留下部分文档。
func (p *Processor) cleanup(ctx context.Context, documentID uint) {
	if err := p.docRepo.Delete(documentID); err != nil {
		log.Errorf("[Processor] 清理文档 %d 失败: %v", documentID, err)
	}
	if err := p.index.DeleteByDocumentID(ctx, documentID); err != nil {
		log.Errorf("[Processor] 清理文档 %d 的向量索引失败: %v", documentID, err)
	}
}
