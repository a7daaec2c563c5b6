package handler

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"

	"tutorbox-backend/internal/config"
	"tutorbox-backend/internal/editor"
	"tutorbox-backend/internal/logger"
)

// sendBuffer 구독자별 대기 메시지 수. 넘치면 메시지를 버린다.
const sendBuffer = 64

// EditorWSHandler 에디터 변경/토스트 WebSocket 스트림
type EditorWSHandler struct {
	hub *editor.Hub
	cfg config.WebSocketConfig
	log *logger.Logger
}

// EditorWSMessage 클라이언트 제어 메시지
type EditorWSMessage struct {
	Type string `json:"type"` // ping, pong
}

// NewEditorWSHandler EditorWSHandler 생성
func NewEditorWSHandler(hub *editor.Hub, cfg config.WebSocketConfig, log *logger.Logger) *EditorWSHandler {
	return &EditorWSHandler{hub: hub, cfg: cfg, log: log.With("component", "editor_ws")}
}

// HandleWebSocket 업그레이드 전 미들웨어가 userID, lessonID 를 Locals 에 넣어둔다.
// 에디터는 REST open 으로 먼저 열려 있어야 한다.
func (h *EditorWSHandler) HandleWebSocket(c *websocket.Conn) {
	// 패닉 복구 - 서버 크래시 방지
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("editor websocket panic recovered", "panic", r)
		}
	}()

	userID, ok1 := c.Locals("userID").(int64)
	lessonID, ok2 := c.Locals("lessonID").(int64)
	if !ok1 || !ok2 {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"invalid session"}`))
		_ = c.Close()
		return
	}

	e, err := h.hub.Get(userID, lessonID)
	if err != nil {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"editor is not open"}`))
		_ = c.Close()
		return
	}

	log := h.log.With("user_id", userID, "lesson_id", lessonID)
	log.Info("editor websocket connected")

	send := make(chan []byte, sendBuffer)
	done := make(chan struct{})

	unsubscribe := e.Subscribe(func(msg editor.Message) {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Warn("message encode failed", "error", err)
			return
		}
		select {
		case send <- data:
		case <-done:
		default:
			log.Warn("editor websocket send buffer full, dropping message", "type", msg.Type)
		}
	})

	// 쓰기는 이 고루틴에서만 한다
	go h.writeLoop(c, send, done)

	defer func() {
		unsubscribe()
		close(done)
		_ = c.Close()
		log.Info("editor websocket disconnected")
	}()

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			return
		}

		var msg EditorWSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(EditorWSMessage{Type: "pong"})
			select {
			case send <- pong:
			default:
			}
		}
	}
}

func (h *EditorWSHandler) writeLoop(c *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	interval := h.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case data := <-send:
			h.setWriteDeadline(c)
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			h.setWriteDeadline(c)
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func (h *EditorWSHandler) setWriteDeadline(c *websocket.Conn) {
	if h.cfg.WriteTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	}
}
