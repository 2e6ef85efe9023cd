// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"fmt"

	"doc-qa-go/internal/model"

	"gorm.io/gorm"
)

// ErrPersistenceFailed 表示底层写入失败，对当前摄取运行是致命的。
var ErrPersistenceFailed = errors.New("persistence failed")

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("record not found")

// DocumentRepository 定义了对 documents 表的数据操作接口。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id uint) (*model.Document, error)
	// FindRecent 按创建时间倒序返回最近的文档，是相似度检索不可用时的回退读取路径。
	FindRecent(limit int) ([]model.Document, error)
	// Delete 删除文档及其全部 embeddings 行（级联，单事务）。
	Delete(id uint) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 持久化一条文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("%w: create document: %v", ErrPersistenceFailed, err)
	}
	return nil
}

// FindByID 按主键查找文档。
func (r *documentRepository) FindByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: document %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &doc, nil
}

// FindRecent 返回最近创建的 limit 条文档。
func (r *documentRepository) FindRecent(limit int) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Order("created_at DESC").Limit(limit).Find(&docs).Error
	return docs, err
}

// Delete 在单个事务内删除文档行与其全部分块行。
func (r *documentRepository) Delete(id uint) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.Embedding{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Document{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("%w: delete document %d: %v", ErrPersistenceFailed, id, err)
	}
	return nil
}
