// internal/server/transport/client.go
package transport

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/obrien-tchaleu/ludo-server/internal/server/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Handler traite les trames d'une session
type Handler interface {
	Connect(s *session.Session)
	HandleFrame(s *session.Session, data []byte)
	Disconnect(s *session.Session)
}

// Client représente une connexion websocket
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	session *session.Session
	hub     *Hub
	log     *zap.Logger
}

func newClient(conn *websocket.Conn, s *session.Session, hub *Hub, log *zap.Logger) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		session: s,
		hub:     hub,
		log:     log.With(zap.String("conn_id", s.ConnID)),
	}
}

// run démarre l'écriture puis lit jusqu'à la fermeture
func (c *Client) run(handler Handler, maxMessageSize int64) {
	c.hub.register(c)
	go c.writePump()

	handler.Connect(c.session)
	c.readPump(handler, maxMessageSize)
}

// readPump lit les trames et les transmet au handler
func (c *Client) readPump(handler Handler, maxMessageSize int64) {
	defer func() {
		handler.Disconnect(c.session)
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		handler.HandleFrame(c.session, data)
	}
}

// writePump vide la file d'envoi et entretient la connexion
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("websocket write error", zap.Error(err))
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
