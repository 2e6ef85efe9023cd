package repository

import (
	"doc-qa-go/internal/model"

	"gorm.io/gorm"
)

// QueryRecordRepository 定义了问答观测记录的仅追加存储。
type QueryRecordRepository interface {
	Create(record *model.QueryRecord) error
	FindRecent(limit int) ([]model.QueryRecord, error)
}

type queryRecordRepository struct {
	db *gorm.DB
}

// NewQueryRecordRepository 创建一个新的 QueryRecordRepository 实例。
func NewQueryRecordRepository(db *gorm.DB) QueryRecordRepository {
	return &queryRecordRepository{db: db}
}

// Create 追加一条问答记录。
func (r *queryRecordRepository) Create(record *model.QueryRecord) error {
	return r.db.Create(record).Error
}

// FindRecent 按时间倒序返回最近的问答记录。
func (r *queryRecordRepository) FindRecent(limit int) ([]model.QueryRecord, error) {
	var records []model.QueryRecord
	err := r.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}
