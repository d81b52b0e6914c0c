package events

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub streams bus events to websocket clients. Frames are binary protobuf
// Structs, or protojson text frames when the client asks for ?format=json.
// A ?player= filter restricts the stream to one player's events.
type Hub struct {
	bus      *Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a websocket hub over the bus
func NewHub(bus *Bus, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	asJSON := r.URL.Query().Get("format") == "json"
	playerID := r.URL.Query().Get("player")
	events, cancel := h.bus.Subscribe()

	h.logger.Info("Event stream connected",
		zap.String("remote", r.RemoteAddr),
		zap.String("player_id", playerID),
		zap.Bool("json", asJSON))

	closed := make(chan struct{})
	go h.readLoop(conn, closed)
	h.writeLoop(conn, events, closed, asJSON, playerID)

	cancel()
	conn.Close()
	h.logger.Info("Event stream disconnected", zap.String("remote", r.RemoteAddr))
}

// readLoop discards client messages and notices when the client goes away
func (h *Hub) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, events <-chan Event, closed <-chan struct{}, asJSON bool, playerID string) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	messageType := websocket.BinaryMessage
	if asJSON {
		messageType = websocket.TextMessage
	}

	for {
		select {
		case e, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if playerID != "" && e.PlayerID() != playerID {
				continue
			}
			data, err := MarshalFrame(e, asJSON)
			if err != nil {
				h.logger.Error("Failed to encode event", zap.String("event", e.Name), zap.Error(err))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(messageType, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
