package extract

import (
	"context"

	"doc-qa-go/pkg/tika"
)

// tikaMimeTypes 是配置了 Tika 服务器时交由 Tika 解析的格式。
// PDF 也在列表中：Tika 的解析质量优于内置库，注册时会覆盖内置提取器。
var tikaMimeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

type tikaExtractor struct {
	client   *tika.Client
	mimeType string
}

func (e *tikaExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	return e.client.ExtractText(ctx, data, e.mimeType)
}

// RegisterTika 将 Tika 支持的二进制格式注册到注册表。
func (r *Registry) RegisterTika(client *tika.Client) {
	for _, mt := range tikaMimeTypes {
		r.Register(mt, &tikaExtractor{client: client, mimeType: mt})
	}
}
