// internal/server/room/recorder.go
package room

import (
	"context"

	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
)

// Recorder archive les parties terminées
type Recorder interface {
	SaveGame(ctx context.Context, record *models.GameRecord) error
	UpdatePlayerStats(ctx context.Context, userID int64, won bool, moves int) error
}

// Notifier délivre les messages aux connexions
type Notifier interface {
	Send(connID string, msg *models.NetworkMessage)
	Broadcast(msg *models.NetworkMessage, skip func(connID string) bool)
}

// Observer reçoit les événements utiles aux métriques
type Observer interface {
	RoomOpened()
	RoomClosed()
	DiceRolled()
	PieceMoved()
	PiecesCaptured(n int)
	GameFinished()
	RecordFailed()
}

type noopRecorder struct{}

func (noopRecorder) SaveGame(context.Context, *models.GameRecord) error { return nil }

func (noopRecorder) UpdatePlayerStats(context.Context, int64, bool, int) error { return nil }

type noopNotifier struct{}

func (noopNotifier) Send(string, *models.NetworkMessage) {}

func (noopNotifier) Broadcast(*models.NetworkMessage, func(string) bool) {}

type noopObserver struct{}

func (noopObserver) RoomOpened()        {}
func (noopObserver) RoomClosed()        {}
func (noopObserver) DiceRolled()        {}
func (noopObserver) PieceMoved()        {}
func (noopObserver) PiecesCaptured(int) {}
func (noopObserver) GameFinished()      {}
func (noopObserver) RecordFailed()      {}
