// internal/server/room/manager.go
package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obrien-tchaleu/ludo-server/internal/server/board"
	"github.com/obrien-tchaleu/ludo-server/internal/server/game"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrGameAlreadyStarted = errors.New("game already in progress")
	ErrAlreadyInRoom      = errors.New("already in a room")
	ErrNotInRoom          = errors.New("not in a room")
)

// Settings regroupe les paramètres de jeu
type Settings struct {
	Rules         board.Ruleset
	AILevel       string
	NoMoveDelay   time.Duration
	AIRollDelay   time.Duration
	AIMoveDelay   time.Duration
	TurnTimeout   time.Duration
	RecordTimeout time.Duration
}

// DefaultSettings retourne les paramètres par défaut
func DefaultSettings() Settings {
	return Settings{
		Rules:         board.RulesHomeStretch,
		NoMoveDelay:   constants.DefaultNoMoveDelay,
		AIRollDelay:   constants.DefaultAIRollDelay,
		AIMoveDelay:   constants.DefaultAIMoveDelay,
		TurnTimeout:   constants.DefaultTurnTimeout,
		RecordTimeout: constants.DefaultRecordTimeout,
	}
}

// Deps regroupe les collaborateurs du gestionnaire
type Deps struct {
	Notifier  Notifier
	Recorder  Recorder
	Scheduler Scheduler
	Observer  Observer
	Logger    *zap.Logger
	NewID     func() string
	NewRand   func() *rand.Rand
	Dice      func() int
	Now       func() time.Time
}

// CreateRequest décrit une demande de création de salle
type CreateRequest struct {
	Name        string
	UserID      int64
	DisplayName string
	IsPrivate   bool
	Scripted    bool
}

// Binding associe une connexion à une salle et à une identité
type Binding struct {
	RoomID string
	UserID int64
}

// Manager gère toutes les salles de jeu
type Manager struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	bindings map[string]Binding
	users    map[string]int64

	settings  Settings
	notifier  Notifier
	recorder  Recorder
	scheduler Scheduler
	observer  Observer
	log       *zap.Logger
	newID     func() string
	newRand   func() *rand.Rand
	dice      func() int
	now       func() time.Time

	// recMu protège closing ; record est appelé sous r.pub, jamais sous m.mu
	recMu   sync.Mutex
	closing bool
	records sync.WaitGroup
	seeds   atomic.Int64
}

// NewManager crée un nouveau gestionnaire de salles
func NewManager(settings Settings, deps Deps) *Manager {
	m := &Manager{
		rooms:     make(map[string]*Room),
		bindings:  make(map[string]Binding),
		users:     make(map[string]int64),
		settings:  settings,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		scheduler: deps.Scheduler,
		observer:  deps.Observer,
		log:       deps.Logger,
		newID:     deps.NewID,
		newRand:   deps.NewRand,
		dice:      deps.Dice,
		now:       deps.Now,
	}

	if m.notifier == nil {
		m.notifier = noopNotifier{}
	}
	if m.recorder == nil {
		m.recorder = noopRecorder{}
	}
	if m.scheduler == nil {
		m.scheduler = RealScheduler{}
	}
	if m.observer == nil {
		m.observer = noopObserver{}
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.newRand == nil {
		m.seeds.Store(time.Now().UnixNano())
		m.newRand = func() *rand.Rand {
			return rand.New(rand.NewSource(m.seeds.Add(1)))
		}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// CreateRoom crée une nouvelle salle dont le créateur occupe le premier siège
func (m *Manager) CreateRoom(connID string, req CreateRequest) (*models.Room, error) {
	model := &models.Room{
		ID:           m.newID(),
		Name:         strings.TrimSpace(req.Name),
		Participants: make([]*models.Participant, 0, constants.MaxPlayers),
		State:        constants.StateWaiting,
		Turn:         constants.TurnAwaitingRoll,
		IsPrivate:    req.IsPrivate,
		IsScripted:   req.Scripted,
		CreatedAt:    m.now(),
	}

	host := models.NewParticipant(req.UserID, req.DisplayName, constants.ColorOrder[0])
	host.ConnID = connID
	model.Participants = append(model.Participants, host)
	if req.Scripted {
		model.Participants = append(model.Participants, models.NewScriptedParticipant(constants.ColorOrder[1]))
	}

	engine := game.NewEngine(model, game.Options{
		Rules:   m.settings.Rules,
		AILevel: m.settings.AILevel,
		Rand:    m.newRand(),
		Dice:    m.dice,
		Now:     m.now,
	})

	var started []*models.NetworkMessage
	if req.Scripted {
		t, err := engine.Start()
		if err != nil {
			return nil, err
		}
		started = t.Events
	}

	room := newRoom(m, model, engine)
	room.conns[connID] = req.UserID

	m.mu.Lock()
	if _, bound := m.bindings[connID]; bound {
		m.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	m.rooms[model.ID] = room
	m.bindings[connID] = Binding{RoomID: model.ID, UserID: req.UserID}
	m.users[connID] = req.UserID
	m.mu.Unlock()

	// L'identifiant n'est connu de personne avant ROOM_CREATED
	room.attach(connID, started)

	m.observer.RoomOpened()
	m.log.Info("room created",
		zap.String("room_id", model.ID),
		zap.String("name", model.Name),
		zap.String("creator", req.DisplayName),
		zap.Bool("scripted", req.Scripted),
	)

	if room.listed() {
		m.publishRoomList()
	}
	return room.Snapshot(), nil
}

// JoinRoom permet à un joueur de rejoindre une salle.
// La liaison est réservée sous m.mu, puis la salle est rejointe hors verrou.
func (m *Manager) JoinRoom(connID, roomID string, userID int64, username string) (*models.Participant, error) {
	b := Binding{RoomID: roomID, UserID: userID}

	m.mu.Lock()
	if _, bound := m.bindings[connID]; bound {
		m.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("room %s: %w", roomID, ErrRoomNotFound)
	}
	m.bindings[connID] = b
	m.mu.Unlock()

	player, err := room.join(connID, userID, username)
	if err != nil {
		m.release(connID, b)
		return nil, err
	}

	m.mu.Lock()
	kept := m.bindings[connID] == b
	if kept {
		m.users[connID] = userID
	}
	m.mu.Unlock()

	// La connexion s'est fermée pendant la jonction
	if !kept {
		if room.leave(connID) {
			m.drop(roomID, room)
		}
		return nil, ErrNotInRoom
	}

	m.log.Info("player joined room",
		zap.String("room_id", roomID),
		zap.String("player", username),
		zap.String("color", string(player.Color)),
	)

	if !room.Model.IsPrivate {
		m.publishRoomList()
	}
	return player, nil
}

// release annule une liaison réservée si elle n'a pas changé entre-temps
func (m *Manager) release(connID string, b Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bindings[connID] == b {
		delete(m.bindings, connID)
	}
}

// SetReady marque le joueur prêt ; la partie démarre quand tous les humains le sont
func (m *Manager) SetReady(connID string) {
	room := m.resolve(connID, "")
	if room == nil {
		return
	}
	if room.setReady(connID) {
		m.log.Info("game started", zap.String("room_id", room.ID()))
		if !room.Model.IsPrivate {
			m.publishRoomList()
		}
	}
}

// RollDice transmet un lancer ; les demandes hors tour sont ignorées
func (m *Manager) RollDice(connID, roomID string) {
	if room := m.resolve(connID, roomID); room != nil {
		room.roll(connID)
	}
}

// MovePiece transmet un déplacement ; les demandes hors tour sont ignorées
func (m *Manager) MovePiece(connID, roomID string, pieceIndex int) {
	if room := m.resolve(connID, roomID); room != nil {
		room.move(connID, pieceIndex)
	}
}

// Invite envoie une invitation aux connexions de l'utilisateur ciblé
func (m *Manager) Invite(connID, roomID string, targetUserID int64) (int, error) {
	room := m.resolve(connID, roomID)
	if room == nil {
		return 0, ErrNotInRoom
	}
	inviter, roomName, ok := room.inviter(connID)
	if !ok {
		return 0, ErrNotInRoom
	}

	m.mu.RLock()
	targets := make([]string, 0, 1)
	for id, userID := range m.users {
		if userID == targetUserID && id != connID {
			targets = append(targets, id)
		}
	}
	m.mu.RUnlock()

	msg := models.NewMessage(constants.MsgGameInvitation, models.InvitationPayload{
		RoomID:      room.ID(),
		RoomName:    roomName,
		InviterName: inviter,
	})
	for _, id := range targets {
		m.notifier.Send(id, msg)
	}
	return len(targets), nil
}

// Identify associe une identité à une connexion, pour les invitations
func (m *Manager) Identify(connID string, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[connID] = userID
}

// Forget oublie une connexion fermée et la retire de sa salle
func (m *Manager) Forget(connID string) {
	m.mu.Lock()
	delete(m.users, connID)
	m.mu.Unlock()
	m.Disconnect(connID)
}

// Disconnect retire une connexion de sa salle
func (m *Manager) Disconnect(connID string) {
	m.mu.Lock()
	b, ok := m.bindings[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.bindings, connID)
	room := m.rooms[b.RoomID]
	m.mu.Unlock()

	if room == nil {
		return
	}

	wasListed := room.listed()
	if room.leave(connID) {
		m.drop(b.RoomID, room)
	}

	if wasListed {
		m.publishRoomList()
	}
}

// drop supprime une salle vidée de ses connexions
func (m *Manager) drop(roomID string, room *Room) {
	m.mu.Lock()
	if m.rooms[roomID] == room {
		delete(m.rooms, roomID)
	}
	m.mu.Unlock()
	m.observer.RoomClosed()
	m.log.Info("room deleted", zap.String("room_id", roomID))
}

// LeaveRoom quitte la salle sans fermer la connexion
func (m *Manager) LeaveRoom(connID string) error {
	if !m.IsBound(connID) {
		return ErrNotInRoom
	}
	m.Disconnect(connID)
	return nil
}

// ListRooms retourne la liste des salles publiques en attente
func (m *Manager) ListRooms() []models.PublicRoom {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.RUnlock()

	list := make([]models.PublicRoom, 0, len(rooms))
	for _, room := range rooms {
		if view, ok := room.publicView(); ok {
			list = append(list, view)
		}
	}

	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// GetRoom récupère une salle par son ID
func (m *Manager) GetRoom(roomID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	return room, ok
}

// BindingOf retourne la salle et l'identité associées à une connexion
func (m *Manager) BindingOf(connID string) (Binding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bindings[connID]
	return b, ok
}

// IsBound indique si la connexion est dans une salle
func (m *Manager) IsBound(connID string) bool {
	_, ok := m.BindingOf(connID)
	return ok
}

// GetRoomCount retourne le nombre total de salles
func (m *Manager) GetRoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Close ferme toutes les salles et attend les enregistrements en cours
func (m *Manager) Close() {
	m.recMu.Lock()
	m.closing = true
	m.recMu.Unlock()

	m.mu.Lock()
	for id, room := range m.rooms {
		room.close()
		delete(m.rooms, id)
	}
	m.bindings = make(map[string]Binding)
	m.users = make(map[string]int64)
	m.mu.Unlock()

	m.records.Wait()
}

// Wait attend la fin des enregistrements en cours
func (m *Manager) Wait() {
	m.records.Wait()
}

// resolve retrouve la salle d'une connexion liée
func (m *Manager) resolve(connID, roomID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bindings[connID]
	if !ok {
		return nil
	}
	if roomID != "" && roomID != b.RoomID {
		return nil
	}
	return m.rooms[b.RoomID]
}

// fire relaie un minuteur vers la salle, si elle existe encore
func (m *Manager) fire(roomID string, seq uint64, kind timerKind) {
	room, ok := m.GetRoom(roomID)
	if !ok {
		return
	}
	room.fire(seq, kind)
}

// publishRoomList diffuse le lobby aux connexions hors salle
func (m *Manager) publishRoomList() {
	msg := models.NewMessage(constants.MsgRoomListUpdated, models.RoomListPayload{Rooms: m.ListRooms()})
	m.notifier.Broadcast(msg, m.IsBound)
}

// record archive une partie terminée sans bloquer la salle
func (m *Manager) record(rec *models.GameRecord) {
	m.recMu.Lock()
	if m.closing {
		m.recMu.Unlock()
		m.log.Warn("game not recorded, manager closed", zap.String("room_id", rec.RoomID))
		return
	}
	m.records.Add(1)
	m.recMu.Unlock()

	go func() {
		defer m.records.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.settings.RecordTimeout)
		defer cancel()

		log := m.log.With(zap.String("room_id", rec.RoomID))
		if err := m.recorder.SaveGame(ctx, rec); err != nil {
			m.observer.RecordFailed()
			log.Error("failed to save game", zap.Error(err))
		}

		for _, p := range rec.Participants {
			if p.IsScripted {
				continue
			}
			won := p.ID == rec.WinnerID
			if err := m.recorder.UpdatePlayerStats(ctx, p.ID, won, p.MovesMade); err != nil {
				m.observer.RecordFailed()
				log.Error("failed to update player stats", zap.Int64("user_id", p.ID), zap.Error(err))
			}
		}
	}()
}
