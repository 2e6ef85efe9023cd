// Package llm provides a client for the hosted chat-completion API.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"doc-qa-go/internal/config"

	"github.com/gorilla/websocket"
)

// ErrGenerationFailed 表示生成调用失败（网络错误、超时或非 200 响应）。
var ErrGenerationFailed = errors.New("generation request failed")

// MessageWriter defines an interface for writing streamed answer fragments.
// Both a websocket.Conn and test fakes satisfy it.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for an LLM client.
type Client interface {
	// Generate 以单个 prompt 调用生成接口并返回完整答案文本。
	// 上游响应结构上缺少答案时返回空字符串和 nil error，由调用方决定降级文案。
	Generate(ctx context.Context, prompt string) (string, error)
	// StreamGenerate 以流式方式调用生成接口，并将分块写入 writer。
	StreamGenerate(ctx context.Context, prompt string, writer MessageWriter) error
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client. A missing API key is a fatal
// configuration error.
func NewClient(cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key is not configured")
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}, nil
}

// Message 表示一条角色消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *openAICompatibleClient) newChatRequest(prompt string, stream bool) chatRequest {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: []Message{{Role: "user", Content: prompt}},
		Stream:   stream,
	}
	// 仅注入非零的生成参数
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		reqBody.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		reqBody.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		reqBody.MaxTokens = &m
	}
	return reqBody
}

func (c *openAICompatibleClient) doChatRequest(ctx context.Context, reqBody chatRequest, sse bool) (*http.Response, error) {
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrGenerationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if sse {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %s, body: %s", ErrGenerationFailed, resp.Status, string(bodyBytes))
	}
	return resp, nil
}

// Generate calls the chat-completion API once and returns the full answer text.
func (c *openAICompatibleClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.doChatRequest(ctx, c.newChatRequest(prompt, false), false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGenerationFailed, err)
	}
	if len(chat.Choices) == 0 {
		// 结构上缺少答案不视为错误，调用方替换为固定降级文案
		return "", nil
	}
	return chat.Choices[0].Message.Content, nil
}

// StreamGenerate calls the chat-completion API with streaming enabled and
// forwards each content delta to the writer.
func (c *openAICompatibleClient) StreamGenerate(ctx context.Context, prompt string, writer MessageWriter) error {
	resp, err := c.doChatRequest(ctx, c.newChatRequest(prompt, true), true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("%w: read stream: %v", ErrGenerationFailed, err)
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(data) == "[DONE]" {
			break
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 {
			content := chunk.Choices[0].Delta.Content
			if err := writer.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
				return fmt.Errorf("write stream chunk: %w", err)
			}
		}
	}
	return nil
}
