// internal/server/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ludo"

// Metrics expose les compteurs du serveur de jeu
type Metrics struct {
	registry *prometheus.Registry

	rooms         prometheus.Gauge
	connections   prometheus.Gauge
	roomsCreated  prometheus.Counter
	diceRolls     prometheus.Counter
	moves         prometheus.Counter
	captures      prometheus.Counter
	gamesFinished prometheus.Counter
	recordErrors  prometheus.Counter
	droppedSends  prometheus.Counter
}

// New crée les métriques dans un registre dédié
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of rooms currently registered.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open websocket connections.",
		}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms created since start.",
		}),
		diceRolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dice_rolls_total",
			Help:      "Accepted dice rolls.",
		}),
		moves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "piece_moves_total",
			Help:      "Accepted piece moves.",
		}),
		captures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "piece_captures_total",
			Help:      "Pieces sent back to their yard.",
		}),
		gamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Games that reached a winner.",
		}),
		recordErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_errors_total",
			Help:      "Failed writes to the game history store.",
		}),
		droppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Outbound messages dropped because a client buffer was full.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rooms, m.connections, m.roomsCreated, m.diceRolls, m.moves,
		m.captures, m.gamesFinished, m.recordErrors, m.droppedSends,
	)
	return m
}

// Handler retourne le handler HTTP de /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry retourne le registre sous-jacent
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RoomOpened() {
	m.rooms.Inc()
	m.roomsCreated.Inc()
}

func (m *Metrics) RoomClosed()   { m.rooms.Dec() }
func (m *Metrics) DiceRolled()   { m.diceRolls.Inc() }
func (m *Metrics) PieceMoved()   { m.moves.Inc() }
func (m *Metrics) GameFinished() { m.gamesFinished.Inc() }
func (m *Metrics) RecordFailed() { m.recordErrors.Inc() }

func (m *Metrics) PiecesCaptured(n int) {
	m.captures.Add(float64(n))
}

// ConnectionOpened et ConnectionClosed suivent les sockets ouvertes
func (m *Metrics) ConnectionOpened() { m.connections.Inc() }
func (m *Metrics) ConnectionClosed() { m.connections.Dec() }

// MessageDropped compte un envoi abandonné
func (m *Metrics) MessageDropped() { m.droppedSends.Inc() }
