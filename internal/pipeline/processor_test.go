package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-qa-go/internal/config"
	"doc-qa-go/internal/extract"
	"doc-qa-go/internal/model"
	"doc-qa-go/internal/repository"
	"doc-qa-go/pkg/storage"
	"doc-qa-go/pkg/tasks"
)

type fakeDownloader struct {
	objects map[string][]byte
}

func (d *fakeDownloader) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := d.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrDownloadFailed, key)
	}
	return data, nil
}

type fakeEmbedder struct {
	mu       sync.Mutex
	dims     int
	failFor  map[string]bool // 按分块文本触发失败
	failAll  bool
	numCalls int
}

func (e *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.numCalls++
	e.mu.Unlock()
	if e.failAll || e.failFor[text] {
		return nil, fmt.Errorf("embedding request failed")
	}
	return make([]float32, e.dims), nil
}

func (e *fakeEmbedder) Dimensions() int { return e.dims }

type fakeDocRepo struct {
	mu     sync.Mutex
	nextID uint
	docs   map[uint]*model.Document
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{nextID: 1, docs: map[uint]*model.Document{}}
}

func (r *fakeDocRepo) Create(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.ID = r.nextID
	r.nextID++
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *fakeDocRepo) FindByID(id uint) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return doc, nil
}

func (r *fakeDocRepo) FindRecent(limit int) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var docs []model.Document
	for _, d := range r.docs {
		docs = append(docs, *d)
	}
	if limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

func (r *fakeDocRepo) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

type fakeEmbRepo struct {
	mu      sync.Mutex
	rows    []*model.Embedding
	failure error
}

func (r *fakeEmbRepo) BatchCreate(rows []*model.Embedding) error {
	if r.failure != nil {
		return r.failure
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, rows...)
	return nil
}

func (r *fakeEmbRepo) DeleteByDocumentID(documentID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.DocumentID != documentID {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}

func (r *fakeEmbRepo) CountByDocumentID(documentID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

type fakeIndex struct {
	mu     sync.Mutex
	chunks []model.EsChunk
}

func (i *fakeIndex) IndexChunks(_ context.Context, chunks []model.EsChunk) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.chunks = append(i.chunks, chunks...)
	return len(chunks), nil
}

func (i *fakeIndex) DeleteByDocumentID(_ context.Context, documentID uint) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	kept := i.chunks[:0]
	for _, c := range i.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	i.chunks = kept
	return nil
}

func nWords(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(parts, " ")
}

type processorFixture struct {
	processor  *Processor
	downloader *fakeDownloader
	embedder   *fakeEmbedder
	docRepo    *fakeDocRepo
	embRepo    *fakeEmbRepo
	index      *fakeIndex
}

func newFixture(objects map[string][]byte) *processorFixture {
	f := &processorFixture{
		downloader: &fakeDownloader{objects: objects},
		embedder:   &fakeEmbedder{dims: 8, failFor: map[string]bool{}},
		docRepo:    newFakeDocRepo(),
		embRepo:    &fakeEmbRepo{},
		index:      &fakeIndex{},
	}
	f.processor = NewProcessor(
		f.downloader,
		extract.NewDefaultRegistry(),
		f.embedder,
		f.docRepo,
		f.embRepo,
		f.index,
		config.PipelineConfig{ChunkSize: 500, EmbedWorkers: 2},
		"test-model",
	)
	return f
}

func plainTask(key string) tasks.IngestTask {
	return tasks.IngestTask{ObjectKey: key, FileName: "notes.txt", MimeType: "text/plain"}
}

func TestProcess_ThreeChunksForTwelveHundredWords(t *testing.T) {
	f := newFixture(map[string][]byte{"uploads/notes.txt": []byte(nWords(1200))})

	result, err := f.processor.Process(context.Background(), plainTask("uploads/notes.txt"))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 3, result.ChunksProcessed)
	require.Len(t, f.embRepo.rows, 3)
	var indices []int
	for _, row := range f.embRepo.rows {
		assert.Equal(t, result.DocumentID, row.DocumentID)
		indices = append(indices, row.ChunkIndex)
	}
	assert.Equal(t, []int{0, 1, 2}, indices)

	require.Len(t, f.index.chunks, 3)
	assert.Equal(t, "test-model", f.index.chunks[0].ModelVersion)

	doc, err := f.docRepo.FindByID(result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Name)
	assert.Equal(t, "uploads/notes.txt", doc.Metadata["object_key"])
}

func TestProcess_SingleEmbeddingFailureIsSkipped(t *testing.T) {
	text := nWords(1200)
	f := newFixture(map[string][]byte{"uploads/notes.txt": []byte(text)})

	// 中间那块向量化失败
	words := strings.Fields(text)
	failingChunk := strings.Join(words[500:1000], " ")
	f.embedder.failFor[failingChunk] = true

	result, err := f.processor.Process(context.Background(), plainTask("uploads/notes.txt"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.ChunksProcessed)
	require.Len(t, f.embRepo.rows, 2)
	assert.Equal(t, 0, f.embRepo.rows[0].ChunkIndex)
	assert.Equal(t, 2, f.embRepo.rows[1].ChunkIndex)

	// 文档依然完整存在
	_, err = f.docRepo.FindByID(result.DocumentID)
	assert.NoError(t, err)
}

func TestProcess_DownloadFailureIsFatal(t *testing.T) {
	f := newFixture(map[string][]byte{})

	_, err := f.processor.Process(context.Background(), plainTask("uploads/missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrDownloadFailed)
	assert.Empty(t, f.docRepo.docs)
}

func TestProcess_UnsupportedTypeRejected(t *testing.T) {
	f := newFixture(map[string][]byte{"uploads/blob.bin": {0x00, 0x01, 0x02}})

	task := tasks.IngestTask{ObjectKey: "uploads/blob.bin", FileName: "blob.bin", MimeType: "application/octet-stream"}
	_, err := f.processor.Process(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrUnsupportedType)
	assert.Empty(t, f.docRepo.docs)
}

func TestProcess_EmptyFileRejected(t *testing.T) {
	f := newFixture(map[string][]byte{"uploads/empty.txt": {}})

	_, err := f.processor.Process(context.Background(), plainTask("uploads/empty.txt"))
	assert.Error(t, err)
	assert.Empty(t, f.docRepo.docs)
}

func TestProcess_PersistenceFailureCleansUpDocument(t *testing.T) {
	f := newFixture(map[string][]byte{"uploads/notes.txt": []byte(nWords(600))})
	f.embRepo.failure = fmt.Errorf("%w: disk full", repository.ErrPersistenceFailed)

	_, err := f.processor.Process(context.Background(), plainTask("uploads/notes.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrPersistenceFailed)

	// 不留下部分文档
	assert.Empty(t, f.docRepo.docs)
	assert.Empty(t, f.index.chunks)
}

func TestProcess_ReingestCreatesIndependentDocument(t *testing.T) {
	f := newFixture(map[string][]byte{"uploads/notes.txt": []byte(nWords(100))})

	first, err := f.processor.Process(context.Background(), plainTask("uploads/notes.txt"))
	require.NoError(t, err)
	second, err := f.processor.Process(context.Background(), plainTask("uploads/notes.txt"))
	require.NoError(t, err)

	assert.NotEqual(t, first.DocumentID, second.DocumentID)
	assert.Len(t, f.docRepo.docs, 2)
	assert.Len(t, f.embRepo.rows, 2)
}

func TestProcess_CSVIsIngested(t *testing.T) {
	f := newFixture(map[string][]byte{"uploads/data.csv": []byte("name,age\nalice,30\nbob,42\n")})

	task := tasks.IngestTask{ObjectKey: "uploads/data.csv", FileName: "data.csv", MimeType: "text/csv"}
	result, err := f.processor.Process(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksProcessed)
}
