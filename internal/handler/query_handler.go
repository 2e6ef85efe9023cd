package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"doc-qa-go/internal/service"
	"doc-qa-go/pkg/log"
)

// QueryHandler 负责处理问答相关的 API 请求。
type QueryHandler struct {
	queryService service.QueryService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(queryService service.QueryService) *QueryHandler {
	return &QueryHandler{queryService: queryService}
}

// QueryRequest 是问答请求的载荷。
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
}

// Query 处理一次完整的检索问答请求。
func (h *QueryHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少问题内容"})
		return
	}

	answer, err := h.queryService.Answer(c.Request.Context(), req.Question)
	if err != nil {
		log.Errorf("Query: 回答问题失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "回答生成失败，请稍后重试"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// RecentQueries 返回最近的问答观测记录，用于简单的使用情况分析。
func (h *QueryHandler) RecentQueries(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.queryService.RecentQueries(limit)
	if err != nil {
		log.Errorf("RecentQueries: 获取问答记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取问答记录失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    records,
	})
}
