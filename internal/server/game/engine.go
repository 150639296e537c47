// internal/server/game/engine.go
package game

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/obrien-tchaleu/ludo-server/internal/server/board"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
	"github.com/obrien-tchaleu/ludo-server/pkg/ai"
)

// Engine est la machine à états d'une salle.
// Il ne verrouille rien : l'appelant sérialise tous les appels d'une même salle.
type Engine struct {
	room  *models.Room
	rules board.Ruleset
	rand  *rand.Rand
	dice  func() int
	ai    *ai.AIPlayer
	now   func() time.Time
}

// Options paramètre un moteur
type Options struct {
	Rules   board.Ruleset
	AILevel string
	Rand    *rand.Rand
	Dice    func() int
	Now     func() time.Time
}

// Transition regroupe les effets d'une opération appliquée
type Transition struct {
	Events   []*models.NetworkMessage
	Captures int
	Finished bool
}

// NewEngine crée un nouveau moteur de jeu
func NewEngine(room *models.Room, opts Options) *Engine {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rules == "" {
		opts.Rules = board.RulesHomeStretch
	}

	e := &Engine{
		room:  room,
		rules: opts.Rules,
		rand:  opts.Rand,
		dice:  opts.Dice,
		ai:    ai.NewAIPlayerWithRand(opts.AILevel, opts.Rules, rand.New(rand.NewSource(opts.Rand.Int63()))),
		now:   opts.Now,
	}
	if e.dice == nil {
		e.dice = e.rollUniform
	}
	return e
}

// rollUniform tire une valeur uniforme entre 1 et 6
func (e *Engine) rollUniform() int {
	return e.rand.Intn(constants.DiceMax) + constants.DiceMin
}

// Start démarre la partie avec le premier siège
func (e *Engine) Start() (Transition, error) {
	var t Transition

	if len(e.room.Participants) < constants.MinPlayers {
		return t, fmt.Errorf("not enough players")
	}
	if !e.advance(constants.StatePlaying) {
		return t, fmt.Errorf("game already started")
	}

	now := e.now()
	e.room.StartedAt = &now
	e.room.CurrentPlayer = 0
	e.room.LastRoll = 0
	e.room.Turn = constants.TurnAwaitingRoll

	e.emit(&t, constants.MsgGameStarted, models.RoomPayload{Room: e.room.Snapshot()})
	e.emitTurnChanged(&t)
	return t, nil
}

// RollDice lance le dé pour le participant courant.
// Le booléen est faux si l'action est ignorée.
func (e *Engine) RollDice(actor int) (Transition, bool) {
	var t Transition

	if !e.isTurnOf(actor) || e.room.Turn != constants.TurnAwaitingRoll {
		return t, false
	}

	current := e.room.Participants[actor]
	value := e.dice()
	e.room.LastRoll = value

	movable := board.MovablePieces(current, value, e.rules)
	if len(movable) > 0 {
		e.room.Turn = constants.TurnAwaitingMove
	} else {
		e.room.Turn = constants.TurnAwaitingAdvance
	}

	e.emit(&t, constants.MsgDiceRolled, models.DiceRolledPayload{
		Player:  current.Username,
		Value:   value,
		CanMove: len(movable) > 0,
		Movable: movable,
	})
	return t, true
}

// MovePiece déplace un pion du participant courant.
// Le booléen est faux si l'action est ignorée.
func (e *Engine) MovePiece(actor, pieceIndex int) (Transition, bool) {
	var t Transition

	if !e.isTurnOf(actor) || !e.room.CanMove() {
		return t, false
	}

	current := e.room.Participants[actor]
	if pieceIndex < 0 || pieceIndex >= len(current.Pieces) {
		return t, false
	}

	piece := current.Pieces[pieceIndex]
	roll := e.room.LastRoll
	dest, ok := board.Target(piece, current.Color, roll, e.rules)
	if !ok {
		return t, false
	}

	oldPos := piece.Position
	board.Apply(piece, dest)
	current.MovesMade++

	e.emit(&t, constants.MsgPieceMoved, models.PieceMovedPayload{
		Player:      current.Username,
		PieceIndex:  pieceIndex,
		OldPosition: oldPos,
		NewPosition: piece.Position,
		Zone:        string(piece.Zone),
	})

	if piece.OnTrack() {
		e.checkCaptures(&t, current, piece)
	}

	if board.AllFinished(current.Pieces) {
		e.endGame(&t, current)
		return t, true
	}

	if roll == constants.RollForExtraTurn {
		e.room.Turn = constants.TurnAwaitingRoll
	} else {
		e.nextTurn(&t)
	}
	return t, true
}

// AdvanceTurn passe au participant suivant sans déplacement
func (e *Engine) AdvanceTurn() (Transition, bool) {
	var t Transition
	if e.room.State != constants.StatePlaying || len(e.room.Participants) == 0 {
		return t, false
	}
	e.nextTurn(&t)
	return t, true
}

// ChooseScriptedMove laisse l'IA choisir un pion pour le participant courant
func (e *Engine) ChooseScriptedMove() (int, bool) {
	current := e.room.Current()
	if current == nil || !current.IsScripted || !e.room.CanMove() {
		return 0, false
	}
	return e.ai.SelectPiece(e.room, current, e.room.LastRoll)
}

// isTurnOf vérifie que la partie est en cours et que c'est le tour de actor
func (e *Engine) isTurnOf(actor int) bool {
	if e.room.State != constants.StatePlaying {
		return false
	}
	if actor < 0 || actor >= len(e.room.Participants) {
		return false
	}
	return actor == e.room.CurrentPlayer
}

// checkCaptures renvoie au foyer les pions adverses sur la même case
func (e *Engine) checkCaptures(t *Transition, capturer *models.Participant, moved *models.Piece) {
	for _, other := range e.room.Participants {
		if other == capturer {
			continue
		}
		for _, victim := range other.Pieces {
			if !victim.OnTrack() || victim.Position != moved.Position {
				continue
			}
			slot := board.SendHome(other, victim)
			t.Captures++
			e.emit(t, constants.MsgPieceCaptured, models.PieceCapturedPayload{
				CapturedBy:   capturer.Username,
				CapturedFrom: other.Username,
				PieceIndex:   victim.Index,
				Position:     moved.Position,
				YardSlot:     slot,
			})
		}
	}
}

// nextTurn passe au tour suivant
func (e *Engine) nextTurn(t *Transition) {
	e.room.CurrentPlayer = (e.room.CurrentPlayer + 1) % len(e.room.Participants)
	e.room.Turn = constants.TurnAwaitingRoll
	e.emitTurnChanged(t)
}

// endGame termine la partie
func (e *Engine) endGame(t *Transition, winner *models.Participant) {
	if !e.advance(constants.StateFinished) {
		return
	}
	now := e.now()
	id := winner.ID
	e.room.FinishedAt = &now
	e.room.WinnerID = &id
	t.Finished = true

	duration := 0
	if e.room.StartedAt != nil {
		duration = int(now.Sub(*e.room.StartedAt).Seconds())
	}
	e.emit(t, constants.MsgGameWon, models.GameWonPayload{
		Winner:   winner.Username,
		WinnerID: winner.ID,
		Duration: duration,
	})
}

// advance fait passer la partie à la phase suivante, jamais en arrière
func (e *Engine) advance(to constants.GameState) bool {
	if to.Rank() != e.room.State.Rank()+1 {
		return false
	}
	e.room.State = to
	return true
}

func (e *Engine) emitTurnChanged(t *Transition) {
	current := e.room.Current()
	e.emit(t, constants.MsgTurnChanged, models.TurnChangedPayload{
		CurrentPlayer: current.Username,
		PlayerIndex:   e.room.CurrentPlayer,
	})
}

func (e *Engine) emit(t *Transition, msgType constants.MessageType, payload interface{}) {
	msg := models.NewMessage(msgType, payload)
	msg.RoomID = e.room.ID
	t.Events = append(t.Events, msg)
}
