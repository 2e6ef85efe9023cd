// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"doc-qa-go/internal/config"
	"doc-qa-go/internal/model"
	"doc-qa-go/internal/repository"
	"doc-qa-go/pkg/embedding"
	"doc-qa-go/pkg/es"
	"doc-qa-go/pkg/llm"
	"doc-qa-go/pkg/log"
)

// NoAnswerText 是生成响应结构上缺少答案时返回的固定降级文案。
const NoAnswerText = "抱歉，本次未能生成回答，请稍后重试。"

// Searcher 是相似度检索的读取端。
type Searcher interface {
	Search(ctx context.Context, vector []float32, threshold float64, size int) ([]model.ChunkMatch, error)
}

// QueryService 定义了问答检索操作。
type QueryService interface {
	// Answer 执行一次完整的检索问答并返回答案文本。
	Answer(ctx context.Context, question string) (string, error)
	// StreamAnswer 执行检索后以流式方式下发生成的答案分块。
	StreamAnswer(ctx context.Context, question string, writer llm.MessageWriter) error
	// RecentQueries 返回最近的问答观测记录。
	RecentQueries(limit int) ([]model.QueryRecord, error)
}

type queryService struct {
	embedder  embedding.Client
	retriever *retriever
	llmClient llm.Client
	queryRepo repository.QueryRecordRepository
	cfg       config.QueryConfig
}

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(
	embedder embedding.Client,
	searcher Searcher,
	docRepo repository.DocumentRepository,
	queryRepo repository.QueryRecordRepository,
	llmClient llm.Client,
	cfg config.QueryConfig,
) QueryService {
	return &queryService{
		embedder:  embedder,
		retriever: &retriever{searcher: searcher, docRepo: docRepo, cfg: cfg},
		llmClient: llmClient,
		queryRepo: queryRepo,
		cfg:       cfg,
	}
}

// retrieval 是一次上下文检索的结果。
type retrieval struct {
	Context  string
	TopScore float64
	Matched  int
	Fallback bool
}

// retriever 是显式的两阶段检索策略：
// 首选相似度检索；检索不可用时回退到最近文档的全文。
// 可用性优先于精度：宁可用次优上下文作答，也不直接失败。
type retriever struct {
	searcher Searcher
	docRepo  repository.DocumentRepository
	cfg      config.QueryConfig
}

func (r *retriever) Retrieve(ctx context.Context, vector []float32) (*retrieval, error) {
	matches, err := r.searcher.Search(ctx, vector, r.cfg.ScoreThreshold, r.cfg.MaxResults)
	if err != nil {
		if !errors.Is(err, es.ErrSearchUnavailable) {
			return nil, err
		}
		log.Warnf("[QueryService] 相似度检索不可用, 回退到最近 %d 篇文档: %v", r.cfg.FallbackLimit, err)
		return r.fallback()
	}

	// 检索成功但零命中：上下文为空，生成调用照常发起
	result := &retrieval{Matched: len(matches)}
	if len(matches) == 0 {
		return result, nil
	}

	var b strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, m.TextContent)
	}
	result.Context = b.String()
	result.TopScore = matches[0].Score
	return result, nil
}

func (r *retriever) fallback() (*retrieval, error) {
	docs, err := r.docRepo.FindRecent(r.cfg.FallbackLimit)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, doc.Name, doc.Content)
	}
	return &retrieval{Context: b.String(), Matched: len(docs), Fallback: true}, nil
}

// buildPrompt 将上下文与原始问题组装为单个 prompt，
// 并指示模型只依据上下文作答、信息缺失时如实说明。
func buildPrompt(contextText, question string) string {
	var b strings.Builder
	b.WriteString("你是一个文档问答助手。请仅依据下面提供的参考内容回答问题，")
	b.WriteString("不要编造参考内容之外的信息；如果参考内容不足以回答，请明确说明没有相关信息。\n\n")
	b.WriteString("参考内容:\n")
	if contextText != "" {
		b.WriteString(contextText)
	} else {
		b.WriteString("（无检索结果）\n")
	}
	b.WriteString("\n问题: ")
	b.WriteString(question)
	return b.String()
}

// Answer 协调检索问答流程：向量化问题 -> 检索上下文 -> 生成答案。
// 问题向量化失败与生成失败对本次问答是致命的；检索不可用走回退。
func (s *queryService) Answer(ctx context.Context, question string) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()

	ret, err := s.retrieve(ctx, question)
	if err != nil {
		return "", err
	}

	answer, err := s.llmClient.Generate(ctx, buildPrompt(ret.Context, question))
	if err != nil {
		return "", err
	}
	if answer == "" {
		// 结构上缺少答案按降级处理，不作为错误上抛
		log.Warnf("[QueryService] 生成响应缺少答案内容, 使用固定降级文案")
		answer = NoAnswerText
	}

	s.record(question, start, ret)
	return answer, nil
}

// StreamAnswer 与 Answer 相同的检索流程，但以流式方式下发答案。
func (s *queryService) StreamAnswer(ctx context.Context, question string, writer llm.MessageWriter) error {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()

	ret, err := s.retrieve(ctx, question)
	if err != nil {
		return err
	}
	if err := s.llmClient.StreamGenerate(ctx, buildPrompt(ret.Context, question), writer); err != nil {
		return err
	}
	s.record(question, start, ret)
	return nil
}

func (s *queryService) retrieve(ctx context.Context, question string) (*retrieval, error) {
	vector, err := s.embedder.CreateEmbedding(ctx, question)
	if err != nil {
		log.Errorf("[QueryService] 向量化问题失败: %v", err)
		return nil, err
	}
	ret, err := s.retriever.Retrieve(ctx, vector)
	if err != nil {
		log.Errorf("[QueryService] 检索上下文失败: %v", err)
		return nil, err
	}
	log.Infof("[QueryService] 检索完成, matched: %d, fallback: %v", ret.Matched, ret.Fallback)
	return ret, nil
}

// record 追加一条问答观测记录。观测失败只记录日志，绝不影响本次问答。
func (s *queryService) record(question string, start time.Time, ret *retrieval) {
	rec := &model.QueryRecord{
		Question:  question,
		LatencyMS: time.Since(start).Milliseconds(),
		TopScore:  ret.TopScore,
		Matched:   ret.Matched,
		Fallback:  ret.Fallback,
	}
	if err := s.queryRepo.Create(rec); err != nil {
		log.Warnf("[QueryService] 保存问答记录失败: %v", err)
	}
}

// RecentQueries 返回最近的问答观测记录。
func (s *queryService) RecentQueries(limit int) ([]model.QueryRecord, error) {
	return s.queryRepo.FindRecent(limit)
}
