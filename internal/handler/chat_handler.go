package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"doc-qa-go/internal/service"
	"doc-qa-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理 WebSocket 流式问答连接。
type ChatHandler struct {
	queryService service.QueryService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(queryService service.QueryService) *ChatHandler {
	return &ChatHandler{queryService: queryService}
}

// Handle 处理一个传入的 WebSocket 连接。
// 每收到一条问题消息，执行一次检索问答并把答案分块下发，
// 最后追加一条 done 帧标记本轮回答结束。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立: %s", c.Request.RemoteAddr)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		question := strings.TrimSpace(string(message))
		if question == "" {
			continue
		}
		log.Infof("收到流式问答请求: %s", question)

		if err := h.queryService.StreamAnswer(c.Request.Context(), question, conn); err != nil {
			log.Errorf("流式回答失败: %v", err)
			h.writeFrame(conn, "error", "回答生成失败，请稍后重试")
			continue
		}
		h.writeFrame(conn, "done", "")
	}
}

// writeFrame 下发一条控制帧。写失败时连接已不可用，留给读循环退出。
func (h *ChatHandler) writeFrame(conn *websocket.Conn, frameType, message string) {
	frame := map[string]interface{}{
		"type":      frameType,
		"timestamp": time.Now().UnixMilli(),
	}
	if message != "" {
		frame["message"] = message
	}
	b, _ := json.Marshal(frame)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("下发 %s 帧失败: %v", frameType, err)
	}
}
