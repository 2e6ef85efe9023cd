// Package embedding provides a client for the hosted embedding API.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"doc-qa-go/internal/config"
	"doc-qa-go/pkg/log"
)

var (
	// ErrEmbeddingFailed 表示向量化调用失败（网络错误、超时、非 200 或响应缺少向量字段）。
	ErrEmbeddingFailed = errors.New("embedding request failed")
	// ErrDimensionMismatch 表示上游返回的向量维度与配置不一致，必须在入库前拒绝。
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Client defines the interface for an embedding client.
type Client interface {
	// CreateEmbedding 将一段文本转换为固定维度的向量。
	// 每次调用产生一次出站网络请求，客户端不做重试，由调用方决定跳过还是中止。
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	// Dimensions 返回配置的向量维度。
	Dimensions() int
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient creates a new embedding client. A missing API key is a fatal
// configuration error, reported before any call is attempted.
func NewClient(cfg config.EmbeddingConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedding: api key is not configured")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding: invalid dimensions %d", cfg.Dimensions)
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}, nil
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      []string{text},
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrEmbeddingFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("%w: status %s", ErrEmbeddingFailed, resp.Status)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("%w: decode response: %v", ErrEmbeddingFailed, err)
	}

	if len(embeddingResp.Data) == 0 || len(embeddingResp.Data[0].Embedding) == 0 {
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbeddingFailed)
	}

	vector := embeddingResp.Data[0].Embedding
	if len(vector) != c.cfg.Dimensions {
		log.Errorf("[EmbeddingClient] 向量维度不匹配, 期望 %d, 实际 %d", c.cfg.Dimensions, len(vector))
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, c.cfg.Dimensions, len(vector))
	}
	return vector, nil
}

// Dimensions 返回配置的向量维度。
func (c *openAICompatibleClient) Dimensions() int {
	return c.cfg.Dimensions
}
