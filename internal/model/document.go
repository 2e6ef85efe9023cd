// Package model 定义了与数据库表及 Elasticsearch 文档对应的 Go 结构体。
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata 是文档的自由格式元数据，落库为 JSON 列。
type Metadata map[string]string

// Value 实现 driver.Valuer，供 GORM 序列化为 JSON。
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner。
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("无法将 %T 扫描为 Metadata", value)
	}
	return json.Unmarshal(b, m)
}

// Document 对应 documents 表：一次成功上传生成一条记录，此后不可变，
// 仅能被显式删除（级联删除其全部分块）。
type Document struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	MimeType  string    `gorm:"type:varchar(100);not null;column:mime_type" json:"mimeType"`
	Content   string    `gorm:"type:longtext" json:"-"`
	Metadata  Metadata  `gorm:"type:json" json:"metadata"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// Embedding 对应 embeddings 表：摄取时按批写入，不会被修改，
// 随所属文档删除。向量本体存放在 Elasticsearch（见 EsChunk），
// 这里保留分块文本与维度，便于审计和重建索引。
type Embedding struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID uint      `gorm:"not null;index;column:document_id" json:"documentId"`
	ChunkIndex int       `gorm:"not null;column:chunk_index" json:"chunkIndex"`
	Content    string    `gorm:"type:text" json:"content"`
	Dims       int       `gorm:"not null" json:"dims"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Embedding) TableName() string {
	return "embeddings"
}

// QueryRecord 对应 query_records 表：仅追加的问答观测记录。
type QueryRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Question  string    `gorm:"type:text" json:"question"`
	LatencyMS int64     `gorm:"not null;column:latency_ms" json:"latencyMs"`
	TopScore  float64   `gorm:"column:top_score" json:"topScore"`
	Matched   int       `gorm:"not null" json:"matched"`
	Fallback  bool      `gorm:"not null;default:false" json:"fallback"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (QueryRecord) TableName() string {
	return "query_records"
}

// EsChunk 定义了存储在 Elasticsearch 中的分块文档结构。
type EsChunk struct {
	ChunkID      string    `json:"chunk_id"` // 唯一标识: documentID_chunkIndex
	DocumentID   uint      `json:"document_id"`
	ChunkIndex   int       `json:"chunk_index"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChunkMatch 是相似度检索的单条命中结果。
type ChunkMatch struct {
	DocumentID  uint    `json:"documentId"`
	ChunkIndex  int     `json:"chunkIndex"`
	TextContent string  `json:"textContent"`
	Score       float64 `json:"score"`
}
