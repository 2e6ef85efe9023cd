// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Query         QueryConfig         `mapstructure:"query"`
}

// ServerConfig 存储 HTTP 服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。server_url 为空表示不启用 Tika，
// 仅使用内置的文本提取器。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选，零值表示使用服务端默认值）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// PipelineConfig 配置文档摄取管道。
type PipelineConfig struct {
	// ChunkSize 是每个分块包含的最大单词数。
	ChunkSize int `mapstructure:"chunk_size"`
	// EmbedWorkers 是单次摄取中并发调用 Embedding API 的上限。
	EmbedWorkers int `mapstructure:"embed_workers"`
	// Timeout 是单个文件摄取的总超时。
	Timeout time.Duration `mapstructure:"timeout"`
	// SeedDir 指定启动时自动导入的本地目录，为空则跳过。
	SeedDir string `mapstructure:"seed_dir"`
}

// QueryConfig 配置问答检索管道。
type QueryConfig struct {
	// ScoreThreshold 是相似度命中的最低余弦得分。
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	// MaxResults 是相似度检索返回的最大分块数。
	MaxResults int `mapstructure:"max_results"`
	// FallbackLimit 是相似度检索不可用时回退读取的最近文档数。
	FallbackLimit int `mapstructure:"fallback_limit"`
	// Timeout 是单次问答的总超时。
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load 从指定的路径读取 YAML 文件并解析为 Config。
// 缺失 Embedding/LLM 凭证属于致命配置错误，在发起任何外部调用之前报告。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.group_id", "doc-qa-go-consumer")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("pipeline.chunk_size", 500)
	v.SetDefault("pipeline.embed_workers", 4)
	v.SetDefault("pipeline.timeout", 5*time.Minute)
	v.SetDefault("query.score_threshold", 0.7)
	v.SetDefault("query.max_results", 5)
	v.SetDefault("query.fallback_limit", 3)
	v.SetDefault("query.timeout", 60*time.Second)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查必填配置项。
func (c *Config) Validate() error {
	if c.Embedding.APIKey == "" {
		return errors.New("配置错误: embedding.api_key 未设置")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("配置错误: embedding.dimensions 必须为正数, 当前为 %d", c.Embedding.Dimensions)
	}
	if c.LLM.APIKey == "" {
		return errors.New("配置错误: llm.api_key 未设置")
	}
	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("配置错误: pipeline.chunk_size 必须为正数, 当前为 %d", c.Pipeline.ChunkSize)
	}
	return nil
}
