package repository

import (
	"fmt"

	"doc-qa-go/internal/model"

	"gorm.io/gorm"
)

// EmbeddingRepository 定义了对 embeddings 表的数据操作接口。
type EmbeddingRepository interface {
	// BatchCreate 在单个事务内批量写入，全部成功或全部回滚。
	BatchCreate(rows []*model.Embedding) error
	DeleteByDocumentID(documentID uint) error
	CountByDocumentID(documentID uint) (int64, error)
}

type embeddingRepository struct {
	db *gorm.DB
}

// NewEmbeddingRepository 创建一个新的 EmbeddingRepository 实例。
func NewEmbeddingRepository(db *gorm.DB) EmbeddingRepository {
	return &embeddingRepository{db: db}
}

// BatchCreate 批量创建分块记录。MySQL 支持事务，写入是全有或全无的。
func (r *embeddingRepository) BatchCreate(rows []*model.Embedding) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return fmt.Errorf("%w: batch create embeddings: %v", ErrPersistenceFailed, err)
	}
	return nil
}

// DeleteByDocumentID 删除某个文档的全部分块记录。
func (r *embeddingRepository) DeleteByDocumentID(documentID uint) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.Embedding{}).Error
}

// CountByDocumentID 统计某个文档实际持久化的分块数。
func (r *embeddingRepository) CountByDocumentID(documentID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.Embedding{}).Where("document_id = ?", documentID).Count(&count).Error
	return count, err
}
