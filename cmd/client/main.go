// cmd/client/main.go - client de terminal qui joue automatiquement
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/obrien-tchaleu/ludo-server/internal/logger"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/protocol"
)

// Client représente une session de jeu côté joueur
type Client struct {
	conn      *websocket.Conn
	send      chan *models.NetworkMessage
	receive   chan *models.NetworkMessage
	done      chan struct{}
	log       *zap.Logger
	rand      *rand.Rand
	userID    int64
	username  string
	roomID    string
	rolledSix bool
}

func main() {
	server := flag.String("server", "ws://localhost:8080/ws", "websocket endpoint")
	token := flag.String("token", "", "JWT when the server requires one")
	userID := flag.Int64("user", time.Now().Unix(), "user id when no token is used")
	username := flag.String("name", "player", "display name")
	roomID := flag.String("room", "", "room to join; empty creates one")
	roomName := flag.String("room-name", "Partie", "name of the created room")
	scripted := flag.Bool("vs-computer", true, "play against the computer when creating a room")
	flag.Parse()

	zl, err := logger.Init("info", "console")
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	c, err := connect(*server, *token, zl)
	if err != nil {
		zl.Fatal("failed to connect", zap.Error(err))
	}
	c.userID = *userID
	c.username = *username

	go c.readMessages()
	go c.writeMessages()

	if *roomID == "" {
		c.send <- models.NewMessage(constants.MsgCreateRoom, models.CreateRoomPayload{
			Name:     *roomName,
			Scripted: *scripted,
			UserID:   c.userID,
			Username: c.username,
		})
	} else {
		c.send <- models.NewMessage(constants.MsgJoinRoom, models.JoinRoomPayload{
			RoomID:   *roomID,
			UserID:   c.userID,
			Username: c.username,
		})
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	c.processMessages(interrupt)
}

// connect ouvre la connexion websocket
func connect(server, token string, zl *zap.Logger) (*Client, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	zl.Info("connected", zap.String("server", server))
	return &Client{
		conn:    conn,
		send:    make(chan *models.NetworkMessage, 16),
		receive: make(chan *models.NetworkMessage, 64),
		done:    make(chan struct{}),
		log:     zl,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (c *Client) readMessages() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Warn("connection lost", zap.Error(err))
			return
		}
		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			c.log.Warn("bad frame", zap.Error(err))
			continue
		}
		c.receive <- msg
	}
}

func (c *Client) writeMessages() {
	for msg := range c.send {
		data, err := protocol.EncodeMessage(msg)
		if err != nil {
			c.log.Error("failed to encode", zap.Error(err))
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.log.Warn("failed to send", zap.Error(err))
			return
		}
	}
}

func (c *Client) processMessages(interrupt <-chan os.Signal) {
	for {
		select {
		case msg := <-c.receive:
			if finished := c.handleServerMessage(msg); finished {
				c.close()
				return
			}
		case <-c.done:
			return
		case <-interrupt:
			c.close()
			return
		}
	}
}

func (c *Client) close() {
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

// handleServerMessage réagit à un message ; retourne vrai en fin de partie
func (c *Client) handleServerMessage(msg *models.NetworkMessage) bool {
	switch msg.Type {
	case constants.MsgRoomCreated:
		var p models.RoomCreatedPayload
		if protocol.ExtractPayload(msg.Payload, &p) == nil {
			c.roomID = p.RoomID
			c.log.Info("room created", zap.String("room_id", p.RoomID))
			if p.Room != nil && p.Room.State == constants.StateWaiting {
				c.log.Info("share this room id with your friends", zap.String("room_id", p.RoomID))
				c.send <- models.NewMessage(constants.MsgReady, models.RoomActionPayload{RoomID: c.roomID})
			}
		}
	case constants.MsgPlayerJoined:
		var p models.PlayerJoinedPayload
		if protocol.ExtractPayload(msg.Payload, &p) == nil && p.Room != nil && p.NewPlayer != nil {
			c.roomID = p.Room.ID
			c.log.Info("player joined", zap.String("player", p.NewPlayer.Username))
			if p.NewPlayer.Username == c.username {
				c.send <- models.NewMessage(constants.MsgReady, models.RoomActionPayload{RoomID: c.roomID})
			}
		}
	case constants.MsgGameStarted:
		c.log.Info("game starting")
	case constants.MsgTurnChanged:
		c.handleTurnChanged(msg)
	case constants.MsgDiceRolled:
		c.handleDiceRolled(msg)
	case constants.MsgPieceMoved:
		var p models.PieceMovedPayload
		if protocol.ExtractPayload(msg.Payload, &p) == nil {
			c.log.Info("piece moved",
				zap.String("player", p.Player),
				zap.Int("piece", p.PieceIndex),
				zap.Int("from", p.OldPosition),
				zap.Int("to", p.NewPosition),
				zap.String("zone", p.Zone),
			)
			if p.Player == c.username && c.rolledSix {
				c.rolledSix = false
				c.roll()
			}
		}
	case constants.MsgPieceCaptured:
		var p models.PieceCapturedPayload
		if protocol.ExtractPayload(msg.Payload, &p) == nil {
			c.log.Info("capture", zap.String("by", p.CapturedBy), zap.String("from", p.CapturedFrom))
		}
	case constants.MsgGameWon:
		var p models.GameWonPayload
		if protocol.ExtractPayload(msg.Payload, &p) == nil {
			c.log.Info("game over", zap.String("winner", p.Winner), zap.Int("duration_seconds", p.Duration))
		}
		return true
	case constants.MsgError:
		var p models.ErrorPayload
		if protocol.ExtractPayload(msg.Payload, &p) == nil {
			c.log.Error("server error", zap.String("code", p.Code), zap.String("message", p.Message))
		}
	}
	return false
}

func (c *Client) handleTurnChanged(msg *models.NetworkMessage) {
	var p models.TurnChangedPayload
	if protocol.ExtractPayload(msg.Payload, &p) != nil {
		return
	}
	if p.CurrentPlayer == c.username {
		c.roll()
	}
}

func (c *Client) handleDiceRolled(msg *models.NetworkMessage) {
	var p models.DiceRolledPayload
	if protocol.ExtractPayload(msg.Payload, &p) != nil {
		return
	}
	c.log.Info("dice rolled", zap.String("player", p.Player), zap.Int("value", p.Value))
	if p.Player != c.username || !p.CanMove || len(p.Movable) == 0 {
		return
	}

	c.rolledSix = p.Value == constants.RollForExtraTurn
	piece := p.Movable[c.rand.Intn(len(p.Movable))]
	c.send <- models.NewMessage(constants.MsgMovePiece, models.MovePiecePayload{
		RoomID:     c.roomID,
		PieceIndex: piece,
	})
}

func (c *Client) roll() {
	time.Sleep(300 * time.Millisecond)
	c.send <- models.NewMessage(constants.MsgRollDice, models.RoomActionPayload{RoomID: c.roomID})
}
