package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // browsers connect from the product's own origins
	},
}

// Handler serves jam sockets and the control-plane broadcast endpoint.
type Handler struct {
	hub    *Hub
	bridge *BridgeHandler
}

func NewHandler(hub *Hub, bridgeSecret string) *Handler {
	return &Handler{
		hub:    hub,
		bridge: NewBridgeHandler(hub, bridgeSecret),
	}
}

// Register mounts the socket endpoint and POST /broadcast on r.
func (h *Handler) Register(r *mux.Router) {
	h.RegisterSockets(r)
	r.Handle("/broadcast", h.bridge).Methods(http.MethodPost, http.MethodOptions)
}

// RegisterSockets mounts only the socket endpoint, at /ws and /. Processes
// that push to the hub directly have no use for the broadcast endpoint.
func (h *Handler) RegisterSockets(r *mux.Router) {
	r.HandleFunc("/ws", h.ServeWS).Methods(http.MethodGet)
	r.HandleFunc("/", h.ServeWS).Methods(http.MethodGet)
}

// ServeWS handles GET /ws. The socket is anonymous until it sends announce.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := NewClient(defaultSendBuffer)
	log.Debugw("socket connected", "client", c.id, "remote", r.RemoteAddr)

	go h.writePump(wsConn, c)
	go h.readPump(wsConn, c)
}

func (h *Handler) readPump(wsConn *websocket.Conn, c *Client) {
	defer func() {
		h.hub.Leave(c)
		c.close()
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debugw("socket read failed", "client", c.id, "err", err)
			}
			return
		}

		msg, err := Parse(data)
		if err != nil {
			log.Debugw("frame ignored", "client", c.id, "err", err)
			continue
		}
		if a, ok := msg.(Announce); ok {
			h.hub.Join(context.Background(), c, a)
			continue
		}
		h.hub.HandlePeer(c, msg)
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debugw("socket write failed", "client", c.id, "err", err)
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
