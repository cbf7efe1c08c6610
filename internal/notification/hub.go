package notification

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nao1215/blog/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// writeWait はクライアントへの1回の書き込みに許す時間。
	writeWait = 10 * time.Second
	// pongWait はPongを待つ時間。これを過ぎると切断とみなす。
	pongWait = 60 * time.Second
	// pingPeriod はPingを送る間隔。pongWaitより短くする。
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize はクライアントから受け取るメッセージの最大サイズ。
	maxMessageSize = 512
	// sendBuffer はクライアントごとの送信キューの長さ。
	sendBuffer = 32
)

// client は1本のWebSocket接続。
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub はユーザーごとのWebSocket接続を管理し、通知を配信する。
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub は新しいHubを生成する。
// allowedOriginsに "*" が含まれる場合はすべてのOriginを受け付ける。
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	allowAll := slices.Contains(allowedOrigins, "*")
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowAll || slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger,
	}
}

// Connections はユーザーの接続数を返す。
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Send はユーザーのすべての接続にvをJSONで送る。
// 送信キューが埋まっている接続は切断する。
func (h *Hub) Send(userID string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("通知のエンコードに失敗", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("送信が追いつかない接続を切断", zap.String("user_id", userID))
			h.removeLocked(c)
		}
	}
}

// Serve はHTTPリクエストをWebSocketに切り替え、接続が閉じるまでブロックする。
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeが失敗した場合はUpgrader自身がエラーレスポンスを返している
		h.logger.Debug("WebSocketへの切り替えに失敗", zap.Error(err))
		return
	}

	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
}

// Close はすべての接続を閉じる。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	metrics.StreamConnections.Inc()
	h.logger.Info("通知ストリームに接続", zap.String("user_id", c.userID))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked は接続を登録から外して送信キューを閉じる。h.muを保持して呼び出す。
func (h *Hub) removeLocked(c *client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	metrics.StreamConnections.Dec()
	h.logger.Info("通知ストリームから切断", zap.String("user_id", c.userID))
}

// readPump はクライアントからの切断とPongを検知する。受信したメッセージは捨てる。
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump は送信キューのメッセージと定期的なPingをクライアントに書き込む。
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
