package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"casino-originals/internal/crash"
	"casino-originals/internal/models"
	"casino-originals/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id,omitempty"`
	Data   any    `json:"data"`
}

type Client struct {
	UserID int64
	conn   *websocket.Conn
	send   chan []byte
}

// WebSocketHub fans messages out to connected players. It implements
// services.Broadcaster; publishing never blocks the caller, so slow
// clients drop messages instead of stalling the crash loop.
type WebSocketHub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	log        *zap.Logger
}

var _ services.Broadcaster = (*WebSocketHub)(nil)

func NewWebSocketHub(log *zap.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (hub *WebSocketHub) Run(ctx context.Context) {
	defer close(hub.done)
	for {
		select {
		case <-ctx.Done():
			for client := range hub.clients {
				close(client.send)
				delete(hub.clients, client)
			}
			return

		case client := <-hub.register:
			hub.clients[client] = struct{}{}
			hub.log.Debug("client registered", zap.Int64("user_id", client.UserID))

		case client := <-hub.unregister:
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				close(client.send)
				hub.log.Debug("client unregistered", zap.Int64("user_id", client.UserID))
			}

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)
		}
	}
}

func (hub *WebSocketHub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		hub.log.Error("marshal ws message", zap.String("type", message.Type), zap.Error(err))
		return
	}

	for client := range hub.clients {
		if message.UserID != 0 && client.UserID != message.UserID {
			continue
		}
		select {
		case client.send <- data:
		default:
			// client is not keeping up
			delete(hub.clients, client)
			close(client.send)
		}
	}
}

func (hub *WebSocketHub) publish(msg *Message) {
	select {
	case hub.broadcast <- msg:
	default:
		hub.log.Warn("ws broadcast queue full, dropping message", zap.String("type", msg.Type))
	}
}

func (hub *WebSocketHub) BroadcastCrashTick(t crash.Tick) {
	data := gin.H{
		"roundId":           t.RoundID,
		"roundState":        t.State,
		"currentMultiplier": t.Multiplier,
		"countdown":         t.Countdown.Seconds(),
	}
	if t.State == crash.StateCrashed {
		data["crashPoint"] = t.CrashPoint
	}
	hub.publish(&Message{Type: "CRASH_TICK", Data: data})
}

func (hub *WebSocketHub) BroadcastSettlement(gs models.GameSession) {
	hub.publish(&Message{Type: "BET_SETTLED", Data: liveBet(gs)})
}

func (hub *WebSocketHub) SendBalance(userID int64, wallet *models.Wallet) {
	hub.publish(&Message{Type: "BALANCE_UPDATE", UserID: userID, Data: wallet.Response()})
}

// liveBet is the public view of a settled session in the live feed.
func liveBet(gs models.GameSession) gin.H {
	return gin.H{
		"id":         gs.ID,
		"userId":     gs.UserID,
		"gameId":     gs.GameID,
		"gameMode":   gs.GameMode,
		"betAmount":  gs.BetAmount.StringFixed(2),
		"multiplier": gs.Multiplier,
		"winAmount":  gs.Payout.StringFixed(2),
		"isWin":      gs.IsWin,
		"status":     gs.Status,
		"createdAt":  gs.EndedAt,
	}
}

type WebSocketHandler struct {
	hub    *WebSocketHub
	ledger services.Ledger
	crash  func() crash.Snapshot
}

func NewWebSocketHandler(hub *WebSocketHub, ledger services.Ledger, crashState func() crash.Snapshot) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		ledger: ledger,
		crash:  crashState,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetInt64("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.Warn("failed to upgrade to websocket", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	client := &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, 64),
	}
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()

	h.sendInitial(c.Request.Context(), client)
	h.readPump(client)
}

// sendInitial queues the wallet and the crash round so a new connection
// does not wait for the next event to render.
func (h *WebSocketHandler) sendInitial(ctx context.Context, client *Client) {
	if wallet, err := h.ledger.GetWallet(ctx, client.UserID); err == nil {
		h.hub.SendBalance(client.UserID, wallet)
	} else {
		h.hub.log.Warn("failed to get wallet for ws", zap.Int64("user_id", client.UserID), zap.Error(err))
	}

	if h.crash != nil {
		h.hub.publish(&Message{Type: "CRASH_STATE", UserID: client.UserID, Data: h.crash()})
	}
}

func (h *WebSocketHandler) readPump(client *Client) {
	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
		client.conn.Close()
	}()

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.hub.log.Debug("websocket closed", zap.Int64("user_id", client.UserID), zap.Error(err))
			}
			return
		}

		if msg.Type == "PING" {
			h.hub.publish(&Message{
				Type:   "PONG",
				UserID: client.UserID,
				Data:   gin.H{"timestamp": time.Now().Unix()},
			})
		}
	}
}

func (client *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
