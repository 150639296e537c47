// internal/server/transport/hub.go
package transport

import (
	"sync"

	"go.uber.org/zap"

	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/protocol"
)

// Stats reçoit les événements de connexion
type Stats interface {
	ConnectionOpened()
	ConnectionClosed()
	MessageDropped()
}

type noopStats struct{}

func (noopStats) ConnectionOpened() {}
func (noopStats) ConnectionClosed() {}
func (noopStats) MessageDropped()   {}

// Hub tient l'index des connexions ouvertes et leur délivre les messages
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	stats   Stats
	log     *zap.Logger
}

// NewHub crée un hub vide
func NewHub(stats Stats, log *zap.Logger) *Hub {
	if stats == nil {
		stats = noopStats{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		stats:   stats,
		log:     log,
	}
}

// register ajoute une connexion
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.session.ConnID] = c
	h.mu.Unlock()
	h.stats.ConnectionOpened()
}

// unregister retire une connexion et ferme sa file d'envoi
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.session.ConnID]
	if ok && current == c {
		delete(h.clients, c.session.ConnID)
		close(c.send)
	}
	h.mu.Unlock()
	if ok && current == c {
		h.stats.ConnectionClosed()
	}
}

// Count retourne le nombre de connexions ouvertes
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send délivre un message à une connexion, sans bloquer
func (h *Hub) Send(connID string, msg *models.NetworkMessage) {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		h.log.Error("failed to encode message", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		h.enqueue(c, data, msg)
	}
}

// Broadcast délivre un message à toutes les connexions sauf celles que skip écarte
func (h *Hub) Broadcast(msg *models.NetworkMessage, skip func(connID string) bool) {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		h.log.Error("failed to encode message", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}

	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	// skip peut prendre d'autres verrous : il est appelé hors du verrou du hub
	targets := all[:0]
	for _, c := range all {
		if skip == nil || !skip(c.session.ConnID) {
			targets = append(targets, c)
		}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range targets {
		if h.clients[c.session.ConnID] == c {
			h.enqueue(c, data, msg)
		}
	}
}

// enqueue place une trame dans la file du client (sous verrou de lecture)
func (h *Hub) enqueue(c *Client, data []byte, msg *models.NetworkMessage) {
	select {
	case c.send <- data:
	default:
		h.stats.MessageDropped()
		h.log.Warn("client buffer full, message dropped",
			zap.String("conn_id", c.session.ConnID),
			zap.String("type", string(msg.Type)),
		)
	}
}

// CloseAll ferme toutes les connexions ouvertes
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.conn.Close()
	}
}
