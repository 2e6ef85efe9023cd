// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"doc-qa-go/internal/service"
	"doc-qa-go/pkg/log"
)

// IngestHandler 负责处理文档摄取相关的 API 请求。
type IngestHandler struct {
	ingestService service.IngestService
}

// NewIngestHandler 创建一个新的 IngestHandler 实例。
func NewIngestHandler(ingestService service.IngestService) *IngestHandler {
	return &IngestHandler{ingestService: ingestService}
}

// IngestRequest 是同步摄取请求的载荷。
type IngestRequest struct {
	FileName string `json:"fileName" binding:"required"`
	FileURL  string `json:"fileUrl" binding:"required"`
	FileType string `json:"fileType" binding:"required"`
}

// Ingest 处理同步摄取请求：下载、解析、向量化并入库，完成后返回处理结果。
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数不完整: fileName, fileUrl, fileType 均为必填"})
		return
	}

	result, err := h.ingestService.Ingest(c.Request.Context(), req.FileName, req.FileURL, req.FileType)
	if err != nil {
		log.Errorf("Ingest: 摄取文档 %s 失败: %v", req.FileName, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"documentId":      result.DocumentID,
		"chunksProcessed": result.ChunksProcessed,
	})
}

// Upload 处理文件上传请求：校验类型、写入对象存储并投递异步摄取任务。
func (h *IngestHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件"})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}

	objectKey, err := h.ingestService.Upload(c.Request.Context(), fileHeader.Filename, mimeType, data)
	if err != nil {
		log.Errorf("Upload: 上传文件 %s 失败: %v", fileHeader.Filename, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"objectKey": objectKey,
	})
}

// SupportedTypes 返回当前支持摄取的 MIME 类型列表。
func (h *IngestHandler) SupportedTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    h.ingestService.SupportedTypes(),
	})
}
