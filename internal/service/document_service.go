package service

import (
	"context"
	"unicode/utf8"

	"doc-qa-go/internal/model"
	"doc-qa-go/internal/pipeline"
	"doc-qa-go/internal/repository"
	"doc-qa-go/pkg/log"
)

// ObjectRemover 是对象存储的删除端。
type ObjectRemover interface {
	Remove(ctx context.Context, objectKey string) error
}

// DocumentDTO 是返回给前端的文档摘要，不携带全文。
type DocumentDTO struct {
	ID        uint           `json:"id"`
	Name      string         `json:"name"`
	MimeType  string         `json:"mimeType"`
	Preview   string         `json:"preview"`
	Chunks    int64          `json:"chunks"`
	Metadata  model.Metadata `json:"metadata"`
	CreatedAt string         `json:"createdAt"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	ListRecent(limit int) ([]DocumentDTO, error)
	// Delete 删除文档：数据库行（级联分块）、向量索引、原始对象。
	Delete(ctx context.Context, id uint) error
}

type documentService struct {
	docRepo repository.DocumentRepository
	embRepo repository.EmbeddingRepository
	index   pipeline.VectorIndex
	remover ObjectRemover
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(
	docRepo repository.DocumentRepository,
	embRepo repository.EmbeddingRepository,
	index pipeline.VectorIndex,
	remover ObjectRemover,
) DocumentService {
	return &documentService{
		docRepo: docRepo,
		embRepo: embRepo,
		index:   index,
		remover: remover,
	}
}

const previewRunes = 200

// ListRecent 返回最近创建的文档摘要。
func (s *documentService) ListRecent(limit int) ([]DocumentDTO, error) {
	docs, err := s.docRepo.FindRecent(limit)
	if err != nil {
		return nil, err
	}

	dtos := make([]DocumentDTO, 0, len(docs))
	for _, doc := range docs {
		chunks, err := s.embRepo.CountByDocumentID(doc.ID)
		if err != nil {
			log.Warnf("[DocumentService] 统计文档 %d 分块数失败: %v", doc.ID, err)
		}
		preview := doc.Content
		if utf8.RuneCountInString(preview) > previewRunes {
			preview = string([]rune(preview)[:previewRunes]) + "…"
		}
		dtos = append(dtos, DocumentDTO{
			ID:        doc.ID,
			Name:      doc.Name,
			MimeType:  doc.MimeType,
			Preview:   preview,
			Chunks:    chunks,
			Metadata:  doc.Metadata,
			CreatedAt: doc.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return dtos, nil
}

// Delete 级联删除一个文档的全部痕迹。
// 向量索引与原始对象的清理是尽力而为：数据库删除成功即视为删除成功。
func (s *documentService) Delete(ctx context.Context, id uint) error {
	doc, err := s.docRepo.FindByID(id)
	if err != nil {
		return err
	}

	if err := s.docRepo.Delete(id); err != nil {
		return err
	}
	if err := s.index.DeleteByDocumentID(ctx, id); err != nil {
		log.Warnf("[DocumentService] 清理文档 %d 的向量索引失败: %v", id, err)
	}
	if objectKey := doc.Metadata["object_key"]; objectKey != "" {
		if err := s.remover.Remove(ctx, objectKey); err != nil {
			log.Warnf("[DocumentService] 删除对象 %s 失败: %v", objectKey, err)
		}
	}
	log.Infof("[DocumentService] 文档 %d 已删除", id)
	return nil
}
