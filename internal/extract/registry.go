// Package extract 提供按声明 MIME 类型分派的文本提取器注册表。
// 未注册的类型会被拒绝，而不是把二进制内容当作普通文本误解码。
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"
)

// ErrUnsupportedType 表示声明的 MIME 类型没有对应的提取器。
var ErrUnsupportedType = errors.New("不支持的文件类型")

// Extractor 将某一类格式的原始字节转换为纯文本。
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc 允许用函数实现 Extractor。
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

// Extract 实现 Extractor 接口。
func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// Registry 维护 MIME 类型到提取器的映射。
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry 创建一个空的注册表。
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// NewDefaultRegistry 创建包含内置提取器的注册表：
// 纯文本类直接解码，PDF 走真正的二进制解析。
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, mt := range []string{"text/plain", "text/csv", "text/markdown"} {
		r.Register(mt, ExtractorFunc(extractPlainText))
	}
	r.Register("application/pdf", ExtractorFunc(extractPDF))
	return r
}

// Register 为指定 MIME 类型注册提取器，后注册者覆盖先注册者。
func (r *Registry) Register(mimeType string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[normalizeMimeType(mimeType)] = e
}

// Supports 报告是否存在处理该 MIME 类型的提取器。
func (r *Registry) Supports(mimeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.extractors[normalizeMimeType(mimeType)]
	return ok
}

// SupportedTypes 返回当前注册的全部 MIME 类型。
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.extractors))
	for mt := range r.extractors {
		types = append(types, mt)
	}
	return types
}

// Extract 按声明的 MIME 类型分派提取器。
func (r *Registry) Extract(ctx context.Context, mimeType string, data []byte) (string, error) {
	key := normalizeMimeType(mimeType)
	r.mu.RLock()
	e, ok := r.extractors[key]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	return e.Extract(ctx, data)
}

// normalizeMimeType 去掉参数部分并统一小写，例如
// "text/CSV; charset=utf-8" -> "text/csv"。
func normalizeMimeType(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}

// extractPlainText 将字节按 UTF-8 文本解码，并去掉可能存在的 BOM。
func extractPlainText(_ context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	return string(data), nil
}
