// Package es 提供了基于 Elasticsearch dense_vector 的分块向量索引。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"doc-qa-go/internal/config"
	"doc-qa-go/internal/model"
	"doc-qa-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ErrSearchUnavailable 表示向量索引不可用（索引缺失或 ES 不可达），
// 调用方应执行降级策略而不是直接失败。
var ErrSearchUnavailable = errors.New("similarity search unavailable")

// Store 封装对单个向量索引的读写。
type Store struct {
	client    *elasticsearch.Client
	indexName string
	dims      int
}

// New 初始化 Elasticsearch 客户端并确保索引存在。
func New(cfg config.ElasticsearchConfig, dims int) (*Store, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, err
	}
	s := &Store{client: client, indexName: cfg.IndexName, dims: dims}
	if err := s.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return s, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则按配置维度和 cosine 相似度创建。
func (s *Store) createIndexIfNotExists() error {
	res, err := s.client.Indices.Exists([]string{s.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"document_id": { "type": "long" },
				"chunk_index": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" },
				"created_at": { "type": "date" }
			}
		}
	}`, s.dims)

	res, err = s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", s.indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功 (dims=%d)", s.indexName, s.dims)
	return nil
}

// IndexChunks 将一批分块向量逐条索引，返回实际写入的条数。
// ES 的批量写入不保证原子性，部分失败按非致命处理并记录实际写入数。
// 维度与索引配置不一致的分块在发送前拒绝。
func (s *Store) IndexChunks(ctx context.Context, chunks []model.EsChunk) (int, error) {
	indexed := 0
	for _, chunk := range chunks {
		if len(chunk.Vector) != s.dims {
			log.Errorf("分块 %s 向量维度 %d 与索引维度 %d 不一致, 拒绝写入", chunk.ChunkID, len(chunk.Vector), s.dims)
			continue
		}
		docBytes, err := json.Marshal(chunk)
		if err != nil {
			return indexed, err
		}
		req := esapi.IndexRequest{
			Index:      s.indexName,
			DocumentID: chunk.ChunkID,
			Body:       bytes.NewReader(docBytes),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return indexed, fmt.Errorf("索引分块 %s 失败: %w", chunk.ChunkID, err)
		}
		if res.IsError() {
			log.Errorf("索引分块 %s 到 Elasticsearch 出错: %s", chunk.ChunkID, res.String())
			res.Body.Close()
			continue
		}
		res.Body.Close()
		indexed++
	}
	if indexed < len(chunks) {
		log.Warnf("批量索引部分成功: %d/%d", indexed, len(chunks))
	}
	return indexed, nil
}

// Search 对索引执行 kNN 检索，按余弦得分降序返回，
// 过滤掉得分低于 threshold 的命中，最多返回 size 条。
// 索引缺失或 ES 不可达时返回 ErrSearchUnavailable。
func (s *Store) Search(ctx context.Context, vector []float32, threshold float64, size int) ([]model.ChunkMatch, error) {
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              size,
			"num_candidates": size * 20,
		},
		"size": size,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		log.Warnf("索引 '%s' 不存在, 相似度检索不可用", s.indexName)
		return nil, fmt.Errorf("%w: index %s not found", ErrSearchUnavailable, s.indexName)
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsChunk `json:"_source"`
				Score  float64       `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	matches := make([]model.ChunkMatch, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		if hit.Score < threshold {
			continue
		}
		matches = append(matches, model.ChunkMatch{
			DocumentID:  hit.Source.DocumentID,
			ChunkIndex:  hit.Source.ChunkIndex,
			TextContent: hit.Source.TextContent,
			Score:       hit.Score,
		})
	}
	return matches, nil
}

// DeleteByDocumentID 删除某个文档的全部分块（随文档级联删除）。
func (s *Store) DeleteByDocumentID(ctx context.Context, documentID uint) error {
	query := fmt.Sprintf(`{"query":{"term":{"document_id":%d}}}`, documentID)
	res, err := s.client.DeleteByQuery(
		[]string{s.indexName},
		strings.NewReader(query),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	// 索引不存在视为已删除
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("删除文档 %d 的分块失败: %s", documentID, res.String())
	}
	return nil
}
