// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IngestTask represents a queued document ingestion job.
// ObjectKey 指向 MinIO 中的原始文件，MimeType 为上传方声明的类型。
type IngestTask struct {
	ObjectKey string            `json:"object_key"`
	FileName  string            `json:"file_name"`
	MimeType  string            `json:"mime_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
