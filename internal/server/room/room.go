// internal/server/room/room.go
package room

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/obrien-tchaleu/ludo-server/internal/server/game"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
)

type timerKind int

const (
	timerAdvance timerKind = iota
	timerScriptedRoll
	timerScriptedMove
	timerTurnTimeout
)

func (k timerKind) String() string {
	switch k {
	case timerAdvance:
		return "advance"
	case timerScriptedRoll:
		return "scripted_roll"
	case timerScriptedMove:
		return "scripted_move"
	case timerTurnTimeout:
		return "turn_timeout"
	default:
		return "unknown"
	}
}

// Room représente une salle de jeu active.
// Toute lecture ou écriture de l'état passe par mu ; pub ordonne les diffusions.
type Room struct {
	mu     sync.Mutex
	pub    sync.Mutex
	Model  *models.Room
	Engine *game.Engine
	conns  map[string]int64
	seq    uint64
	timer  Timer
	closed bool
	mgr    *Manager
}

type delivery struct {
	to  []string
	msg *models.NetworkMessage
}

// outbox accumule les messages produits sous verrou
type outbox struct {
	deliveries []delivery
	record     *models.GameRecord
}

func (o *outbox) unicast(connID string, msg *models.NetworkMessage) {
	o.deliveries = append(o.deliveries, delivery{to: []string{connID}, msg: msg})
}

func (o *outbox) broadcast(to []string, msgs ...*models.NetworkMessage) {
	for _, msg := range msgs {
		o.deliveries = append(o.deliveries, delivery{to: to, msg: msg})
	}
}

func newRoom(mgr *Manager, model *models.Room, engine *game.Engine) *Room {
	return &Room{
		Model:  model,
		Engine: engine,
		conns:  make(map[string]int64),
		mgr:    mgr,
	}
}

// ID retourne l'identifiant de la salle
func (r *Room) ID() string {
	return r.Model.ID
}

// Snapshot retourne une copie cohérente de l'état
func (r *Room) Snapshot() *models.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Model.Snapshot()
}

// commit relâche le verrou d'état puis diffuse, dans l'ordre des transitions
func (r *Room) commit(out *outbox) {
	r.pub.Lock()
	r.mu.Unlock()
	defer r.pub.Unlock()

	for _, d := range out.deliveries {
		for _, connID := range d.to {
			r.mgr.notifier.Send(connID, d.msg)
		}
	}
	if out.record != nil {
		r.mgr.record(out.record)
	}
}

// recipients liste les connexions suivies (sous verrou)
func (r *Room) recipients() []string {
	to := make([]string, 0, len(r.conns))
	for _, p := range r.Model.Participants {
		if p.ConnID != "" {
			if _, ok := r.conns[p.ConnID]; ok {
				to = append(to, p.ConnID)
			}
		}
	}
	return to
}

// actorIndex retrouve le siège associé à une connexion (sous verrou)
func (r *Room) actorIndex(connID string) int {
	if connID == "" {
		return -1
	}
	for i, p := range r.Model.Participants {
		if p.ConnID == connID {
			return i
		}
	}
	return -1
}

// attach confirme la création au créateur et planifie le premier tour
// d'une partie déjà démarrée
func (r *Room) attach(connID string, started []*models.NetworkMessage) {
	r.mu.Lock()
	out := &outbox{}

	out.unicast(connID, r.createdMessage())
	if r.Model.State == constants.StatePlaying {
		r.schedule()
		out.broadcast(r.recipients(), started...)
	}

	r.commit(out)
}

func (r *Room) createdMessage() *models.NetworkMessage {
	msg := models.NewMessage(constants.MsgRoomCreated, models.RoomCreatedPayload{
		RoomID: r.Model.ID,
		Room:   r.Model.Snapshot(),
	})
	msg.RoomID = r.Model.ID
	return msg
}

// join ajoute un participant humain
func (r *Room) join(connID string, userID int64, username string) (*models.Participant, error) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if len(r.Model.Participants) >= constants.MaxPlayers {
		r.mu.Unlock()
		return nil, ErrRoomFull
	}
	if r.Model.State != constants.StateWaiting {
		r.mu.Unlock()
		return nil, ErrGameAlreadyStarted
	}
	for _, p := range r.Model.Participants {
		if p.ID == userID && p.IsConnected {
			r.mu.Unlock()
			return nil, fmt.Errorf("user %d: %w", userID, ErrAlreadyInRoom)
		}
	}

	player := models.NewParticipant(userID, username, r.freeColor())
	player.ConnID = connID
	r.Model.Participants = append(r.Model.Participants, player)
	r.conns[connID] = userID

	out := &outbox{}
	msg := models.NewMessage(constants.MsgPlayerJoined, models.PlayerJoinedPayload{
		Room:      r.Model.Snapshot(),
		NewPlayer: player.Clone(),
	})
	msg.RoomID = r.Model.ID
	out.broadcast(r.recipients(), msg)

	joined := player.Clone()
	r.commit(out)
	return joined, nil
}

// freeColor retourne la première couleur libre (sous verrou)
func (r *Room) freeColor() constants.PlayerColor {
	used := make(map[constants.PlayerColor]bool, len(r.Model.Participants))
	for _, p := range r.Model.Participants {
		used[p.Color] = true
	}
	for _, c := range constants.ColorOrder {
		if !used[c] {
			return c
		}
	}
	return ""
}

// setReady marque un participant prêt et démarre la partie si possible
func (r *Room) setReady(connID string) (started bool) {
	r.mu.Lock()
	out := &outbox{}
	defer r.commit(out)

	idx := r.actorIndex(connID)
	if idx < 0 || r.Model.State != constants.StateWaiting {
		return false
	}
	r.Model.Participants[idx].IsReady = true
	return r.startIfReady(out)
}

// startIfReady démarre la partie quand tous les humains assis sont prêts (sous verrou)
func (r *Room) startIfReady(out *outbox) bool {
	if r.closed || r.Model.State != constants.StateWaiting {
		return false
	}
	if len(r.Model.Participants) < constants.MinPlayers {
		return false
	}
	for _, p := range r.Model.Participants {
		if !p.IsReady && !p.IsScripted {
			return false
		}
	}

	t, err := r.Engine.Start()
	if err != nil {
		return false
	}
	r.schedule()
	out.broadcast(r.recipients(), t.Events...)
	return true
}

// roll traite une demande de lancer
func (r *Room) roll(connID string) {
	r.mu.Lock()
	out := &outbox{}
	defer r.commit(out)

	t, ok := r.Engine.RollDice(r.actorIndex(connID))
	if !ok {
		return
	}
	r.mgr.observer.DiceRolled()
	r.apply(out, t)
}

// move traite une demande de déplacement
func (r *Room) move(connID string, pieceIndex int) {
	r.mu.Lock()
	out := &outbox{}
	defer r.commit(out)

	t, ok := r.Engine.MovePiece(r.actorIndex(connID), pieceIndex)
	if !ok {
		return
	}
	r.mgr.observer.PieceMoved()
	r.apply(out, t)
}

// apply planifie la suite et prépare la diffusion d'une transition (sous verrou)
func (r *Room) apply(out *outbox, t game.Transition) {
	if t.Captures > 0 {
		r.mgr.observer.PiecesCaptured(t.Captures)
	}
	r.schedule()
	out.broadcast(r.recipients(), t.Events...)
	if t.Finished {
		r.mgr.observer.GameFinished()
		out.record = r.gameRecord()
	}
}

// leave retire une connexion. Retourne vrai si la salle n'a plus de connexion.
func (r *Room) leave(connID string) (empty bool) {
	r.mu.Lock()
	out := &outbox{}
	defer r.commit(out)

	if _, ok := r.conns[connID]; !ok {
		return len(r.conns) == 0
	}
	delete(r.conns, connID)

	idx := r.actorIndex(connID)
	if idx >= 0 {
		if r.Model.State == constants.StateWaiting {
			r.Model.Participants = append(r.Model.Participants[:idx], r.Model.Participants[idx+1:]...)
			if r.Model.CurrentPlayer >= len(r.Model.Participants) {
				r.Model.CurrentPlayer = 0
			}
		} else {
			p := r.Model.Participants[idx]
			p.ConnID = ""
			p.IsConnected = false
			if r.Model.State == constants.StatePlaying && idx == r.Model.CurrentPlayer {
				r.schedule()
			}
		}
	}

	if len(r.conns) == 0 {
		r.closeLocked()
		return true
	}

	msg := models.NewMessage(constants.MsgPlayerLeft, models.RoomPayload{Room: r.Model.Snapshot()})
	msg.RoomID = r.Model.ID
	out.broadcast(r.recipients(), msg)

	// Le départ du seul retardataire suffit à lancer la partie
	r.startIfReady(out)
	return false
}

// invite retourne le nom de l'invitant si la connexion appartient à la salle
func (r *Room) inviter(connID string) (string, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.actorIndex(connID)
	if idx < 0 {
		return "", "", false
	}
	return r.Model.Participants[idx].Username, r.Model.Name, true
}

// publicView retourne la projection publique si la salle est listée
func (r *Room) publicView() (models.PublicRoom, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.Model.IsPrivate || r.Model.State != constants.StateWaiting {
		return models.PublicRoom{}, false
	}
	return models.PublicRoom{
		ID:         r.Model.ID,
		Name:       r.Model.Name,
		Players:    len(r.Model.Participants),
		MaxPlayers: constants.MaxPlayers,
		CreatedAt:  r.Model.CreatedAt,
	}, true
}

// listed indique si la salle apparaît dans le lobby
func (r *Room) listed() bool {
	_, ok := r.publicView()
	return ok
}

// schedule annule le minuteur courant et planifie la prochaine action (sous verrou)
func (r *Room) schedule() {
	r.seq++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.closed || r.Model.State != constants.StatePlaying {
		return
	}

	current := r.Model.Current()
	if current == nil {
		return
	}

	s := r.mgr.settings
	var (
		kind  timerKind
		delay time.Duration
	)

	switch {
	case r.Model.Turn == constants.TurnAwaitingAdvance:
		kind, delay = timerAdvance, s.NoMoveDelay
		if current.IsScripted {
			delay = s.AIMoveDelay
		}
	case current.IsScripted && r.Model.Turn == constants.TurnAwaitingRoll:
		kind, delay = timerScriptedRoll, s.AIRollDelay
	case current.IsScripted:
		kind, delay = timerScriptedMove, s.AIMoveDelay
	case !current.IsConnected:
		kind, delay = timerTurnTimeout, s.NoMoveDelay
	case s.TurnTimeout > 0:
		kind, delay = timerTurnTimeout, s.TurnTimeout
	default:
		return
	}

	seq := r.seq
	roomID := r.Model.ID
	mgr := r.mgr
	r.timer = mgr.scheduler.AfterFunc(delay, func() {
		mgr.fire(roomID, seq, kind)
	})
}

// fire exécute un minuteur s'il correspond toujours à l'état attendu
func (r *Room) fire(seq uint64, kind timerKind) {
	r.mu.Lock()
	out := &outbox{}
	defer r.commit(out)

	if r.closed || seq != r.seq || r.Model.State != constants.StatePlaying {
		return
	}
	r.timer = nil

	current := r.Model.Current()
	if current == nil {
		return
	}

	var (
		t  game.Transition
		ok bool
	)

	switch kind {
	case timerAdvance, timerTurnTimeout:
		t, ok = r.Engine.AdvanceTurn()
	case timerScriptedRoll:
		if !current.IsScripted {
			return
		}
		t, ok = r.Engine.RollDice(r.Model.CurrentPlayer)
		if ok {
			r.mgr.observer.DiceRolled()
		}
	case timerScriptedMove:
		if !current.IsScripted {
			return
		}
		if idx, found := r.Engine.ChooseScriptedMove(); found {
			t, ok = r.Engine.MovePiece(r.Model.CurrentPlayer, idx)
			if ok {
				r.mgr.observer.PieceMoved()
			}
		} else {
			t, ok = r.Engine.AdvanceTurn()
		}
	}

	if !ok {
		return
	}
	r.mgr.log.Debug("room timer fired",
		zap.String("room_id", r.Model.ID),
		zap.String("kind", kind.String()),
	)
	r.apply(out, t)
}

// gameRecord construit l'enregistrement d'une partie terminée (sous verrou)
func (r *Room) gameRecord() *models.GameRecord {
	rec := &models.GameRecord{
		RoomID:       r.Model.ID,
		RoomName:     r.Model.Name,
		Participants: make([]models.RecordParticipant, 0, len(r.Model.Participants)),
		State:        r.Model.State,
	}
	if r.Model.WinnerID != nil {
		rec.WinnerID = *r.Model.WinnerID
	}
	if r.Model.StartedAt != nil {
		rec.StartedAt = *r.Model.StartedAt
	}
	if r.Model.FinishedAt != nil {
		rec.FinishedAt = *r.Model.FinishedAt
	}
	for _, p := range r.Model.Participants {
		rec.Participants = append(rec.Participants, models.RecordParticipant{
			ID:         p.ID,
			Name:       p.Username,
			Color:      p.Color,
			IsScripted: p.IsScripted,
			MovesMade:  p.MovesMade,
		})
	}
	return rec
}

// close ferme la salle et annule son minuteur
func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Room) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true
	r.seq++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
