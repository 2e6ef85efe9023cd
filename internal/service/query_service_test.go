package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-qa-go/internal/config"
	"doc-qa-go/internal/model"
	"doc-qa-go/pkg/embedding"
	"doc-qa-go/pkg/es"
	"doc-qa-go/pkg/llm"
)

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) CreateEmbedding(_ context.Context, _ string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *fakeEmbedder) Dimensions() int { return 3 }

type fakeSearcher struct {
	matches []model.ChunkMatch
	err     error
}

func (s *fakeSearcher) Search(_ context.Context, _ []float32, threshold float64, size int) ([]model.ChunkMatch, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.ChunkMatch, 0, len(s.matches))
	for _, m := range s.matches {
		if m.Score >= threshold {
			out = append(out, m)
		}
	}
	if len(out) > size {
		out = out[:size]
	}
	return out, nil
}

type fakeDocStore struct {
	docs []model.Document
}

func (r *fakeDocStore) Create(_ *model.Document) error            { return nil }
func (r *fakeDocStore) FindByID(_ uint) (*model.Document, error)  { return nil, nil }
func (r *fakeDocStore) Delete(_ uint) error                       { return nil }
func (r *fakeDocStore) FindRecent(limit int) ([]model.Document, error) {
	if limit > len(r.docs) {
		limit = len(r.docs)
	}
	return r.docs[:limit], nil
}

type fakeQueryRepo struct {
	records []*model.QueryRecord
}

func (r *fakeQueryRepo) Create(rec *model.QueryRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeQueryRepo) FindRecent(limit int) ([]model.QueryRecord, error) {
	out := make([]model.QueryRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeLLM struct {
	answer     string
	err        error
	lastPrompt string
	chunks     []string
}

func (l *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	l.lastPrompt = prompt
	return l.answer, l.err
}

func (l *fakeLLM) StreamGenerate(_ context.Context, prompt string, writer llm.MessageWriter) error {
	l.lastPrompt = prompt
	if l.err != nil {
		return l.err
	}
	for _, c := range l.chunks {
		if err := writer.WriteMessage(1, []byte(c)); err != nil {
			return err
		}
	}
	return nil
}

type queryFixture struct {
	svc       QueryService
	embedder  *fakeEmbedder
	searcher  *fakeSearcher
	docs      *fakeDocStore
	queryRepo *fakeQueryRepo
	llm       *fakeLLM
}

func newQueryFixture() *queryFixture {
	f := &queryFixture{
		embedder:  &fakeEmbedder{},
		searcher:  &fakeSearcher{},
		docs:      &fakeDocStore{},
		queryRepo: &fakeQueryRepo{},
		llm:       &fakeLLM{answer: "生成的答案"},
	}
	f.svc = NewQueryService(
		f.embedder,
		f.searcher,
		f.docs,
		f.queryRepo,
		f.llm,
		config.QueryConfig{ScoreThreshold: 0.7, MaxResults: 5, FallbackLimit: 3},
	)
	return f
}

func TestAnswer_WithMatches(t *testing.T) {
	f := newQueryFixture()
	f.searcher.matches = []model.ChunkMatch{
		{DocumentID: 1, ChunkIndex: 0, TextContent: "第一段相关内容", Score: 0.93},
		{DocumentID: 2, ChunkIndex: 3, TextContent: "第二段相关内容", Score: 0.81},
		{DocumentID: 3, ChunkIndex: 1, TextContent: "低分内容", Score: 0.4},
	}

	answer, err := f.svc.Answer(context.Background(), "问题是什么")
	require.NoError(t, err)
	assert.Equal(t, "生成的答案", answer)

	// 低于阈值的命中不进入上下文
	assert.Contains(t, f.llm.lastPrompt, "第一段相关内容")
	assert.Contains(t, f.llm.lastPrompt, "第二段相关内容")
	assert.NotContains(t, f.llm.lastPrompt, "低分内容")
	assert.Contains(t, f.llm.lastPrompt, "问题是什么")

	require.Len(t, f.queryRepo.records, 1)
	rec := f.queryRepo.records[0]
	assert.Equal(t, 2, rec.Matched)
	assert.InDelta(t, 0.93, rec.TopScore, 1e-9)
	assert.False(t, rec.Fallback)
}

func TestAnswer_FallbackOnSearchUnavailable(t *testing.T) {
	f := newQueryFixture()
	f.searcher.err = fmt.Errorf("%w: index missing", es.ErrSearchUnavailable)
	f.docs.docs = []model.Document{
		{ID: 1, Name: "a.txt", Content: "最近文档甲"},
		{ID: 2, Name: "b.txt", Content: "最近文档乙"},
		{ID: 3, Name: "c.txt", Content: "最近文档丙"},
		{ID: 4, Name: "d.txt", Content: "不应出现"},
	}

	answer, err := f.svc.Answer(context.Background(), "问题")
	require.NoError(t, err)
	assert.Equal(t, "生成的答案", answer)

	// 回退取最近 3 篇文档的全文作为上下文
	assert.Contains(t, f.llm.lastPrompt, "最近文档甲")
	assert.Contains(t, f.llm.lastPrompt, "最近文档丙")
	assert.NotContains(t, f.llm.lastPrompt, "不应出现")

	require.Len(t, f.queryRepo.records, 1)
	assert.True(t, f.queryRepo.records[0].Fallback)
	assert.Equal(t, 3, f.queryRepo.records[0].Matched)
}

func TestAnswer_EmptyContextStillGenerates(t *testing.T) {
	f := newQueryFixture()
	// 检索成功但零命中

	answer, err := f.svc.Answer(context.Background(), "没人知道的问题")
	require.NoError(t, err)
	assert.Equal(t, "生成的答案", answer)
	assert.Contains(t, f.llm.lastPrompt, "（无检索结果）")

	require.Len(t, f.queryRepo.records, 1)
	assert.Equal(t, 0, f.queryRepo.records[0].Matched)
}

func TestAnswer_EmbeddingFailureIsFatal(t *testing.T) {
	f := newQueryFixture()
	f.embedder.err = fmt.Errorf("%w: timeout", embedding.ErrEmbeddingFailed)

	_, err := f.svc.Answer(context.Background(), "问题")
	assert.ErrorIs(t, err, embedding.ErrEmbeddingFailed)
	assert.Empty(t, f.queryRepo.records)
}

func TestAnswer_GenerationFailureIsFatal(t *testing.T) {
	f := newQueryFixture()
	f.llm.err = fmt.Errorf("generation request failed")

	_, err := f.svc.Answer(context.Background(), "问题")
	assert.Error(t, err)
	assert.Empty(t, f.queryRepo.records)
}

func TestAnswer_MissingAnswerUsesFixedText(t *testing.T) {
	f := newQueryFixture()
	f.llm.answer = ""

	answer, err := f.svc.Answer(context.Background(), "问题")
	require.NoError(t, err)
	assert.Equal(t, NoAnswerText, answer)
}

func TestStreamAnswer_ForwardsChunks(t *testing.T) {
	f := newQueryFixture()
	f.llm.chunks = []string{"答", "案"}

	var got []string
	writer := writerFunc(func(_ int, data []byte) error {
		got = append(got, string(data))
		return nil
	})

	require.NoError(t, f.svc.StreamAnswer(context.Background(), "问题", writer))
	assert.Equal(t, []string{"答", "案"}, got)
	assert.Len(t, f.queryRepo.records, 1)
}

func TestRecentQueries(t *testing.T) {
	f := newQueryFixture()
	_, err := f.svc.Answer(context.Background(), "第一问")
	require.NoError(t, err)
	_, err = f.svc.Answer(context.Background(), "第二问")
	require.NoError(t, err)

	records, err := f.svc.RecentQueries(10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

type writerFunc func(messageType int, data []byte) error

func (f writerFunc) WriteMessage(messageType int, data []byte) error {
	return f(messageType, data)
}
