package chat

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chatService "github.com/zhouzirui/support-desk/client/internal/service/chat"
	"github.com/zhouzirui/support-desk/client/internal/service/dispatch"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler 工作区变更推送的WebSocket处理器
type WebSocketHandler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatService.Service) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundMessage struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Action string `json:"action,omitempty"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// connection 串行化同一连接上的写操作
type connection struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *connection) send(msgType string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	msg := outgoingMessage{Type: msgType, Data: data, Timestamp: time.Now().Unix()}
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", msgType, err)
	}
}

func (c *connection) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	ws, err := h.chatSvc.GetWorkspace(r.Context(), workspaceID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for workspace: %s", workspaceID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Exchanges already sent complete even if the socket drops.
	sendCtx := context.WithoutCancel(r.Context())

	c := &connection{conn: conn}

	unsubscribe := ws.Subscribe(func(view chatService.View) {
		c.send("snapshot", renderView(view))
	})
	defer unsubscribe()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go pingLoop(ctx, c)

	c.send("snapshot", renderView(ws.View()))

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "message":
			inflight.Add(1)
			go func(text string) {
				defer inflight.Done()
				h.deliver(c, func() (dispatch.Outcome, error) { return ws.Send(sendCtx, text) })
			}(msg.Text)
		case "choice":
			inflight.Add(1)
			go func(action string) {
				defer inflight.Done()
				h.deliver(c, func() (dispatch.Outcome, error) { return ws.Choose(sendCtx, action) })
			}(msg.Action)
		case "reset":
			ws.Reset()
		default:
			c.sendError("unsupported message type: " + msg.Type)
		}
	}
}

// deliver 执行一次发送并推送结果，会话快照通过订阅单独推送
func (h *WebSocketHandler) deliver(c *connection, run func() (dispatch.Outcome, error)) {
	outcome, err := run()
	if err != nil {
		c.sendError(err.Error())
		return
	}
	if outcome.Status == dispatch.StatusIgnored && outcome.Err != nil {
		outcome.Notice = ignoredNotice(outcome.Err)
	}
	c.send("outcome", outcome)
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
