// pkg/ai/ai.go
package ai

import (
	"math/rand"
	"sync"
	"time"

	"github.com/obrien-tchaleu/ludo-server/internal/server/board"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
)

// Niveaux disponibles
const (
	LevelEasy   = "easy"
	LevelMedium = "medium"
)

// ValidLevel indique si le niveau est connu ; vide vaut easy
func ValidLevel(level string) bool {
	switch level {
	case "", LevelEasy, LevelMedium:
		return true
	default:
		return false
	}
}

// AIPlayer choisit les pions du participant scripté
type AIPlayer struct {
	Level string
	rules board.Ruleset
	mu    sync.Mutex
	rand  *rand.Rand
}

// NewAIPlayer crée une nouvelle IA
func NewAIPlayer(level string, rules board.Ruleset) *AIPlayer {
	return NewAIPlayerWithRand(level, rules, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewAIPlayerWithRand permet d'injecter la source aléatoire (tests)
func NewAIPlayerWithRand(level string, rules board.Ruleset, r *rand.Rand) *AIPlayer {
	if level != LevelMedium {
		level = LevelEasy
	}
	return &AIPlayer{Level: level, rules: rules, rand: r}
}

// SelectPiece sélectionne le pion à déplacer.
// Le booléen est faux si aucun pion n'est jouable.
func (ai *AIPlayer) SelectPiece(room *models.Room, player *models.Participant, roll int) (int, bool) {
	movable := board.MovablePieces(player, roll, ai.rules)
	if len(movable) == 0 {
		return 0, false
	}

	if ai.Level == LevelMedium {
		if idx, ok := ai.selectCapture(room, player, roll, movable); ok {
			return idx, true
		}
	}
	return ai.selectDefault(player, roll, movable), true
}

// selectDefault sort un pion du foyer sur un 6, sinon joue au hasard
func (ai *AIPlayer) selectDefault(player *models.Participant, roll int, movable []int) int {
	if roll == 6 {
		for _, idx := range movable {
			if player.Pieces[idx].IsHome() {
				return idx
			}
		}
	}

	ai.mu.Lock()
	defer ai.mu.Unlock()
	return movable[ai.rand.Intn(len(movable))]
}

// selectCapture privilégie un pion qui capture un adversaire
func (ai *AIPlayer) selectCapture(room *models.Room, player *models.Participant, roll int, movable []int) (int, bool) {
	for _, idx := range movable {
		dest, ok := board.Target(player.Pieces[idx], player.Color, roll, ai.rules)
		if !ok || !dest.IsTrack() {
			continue
		}
		if canCapture(room, player, dest.Position) {
			return idx, true
		}
	}
	return 0, false
}

// canCapture vérifie si une case de piste est occupée par un adversaire
func canCapture(room *models.Room, player *models.Participant, pos int) bool {
	for _, other := range room.Participants {
		if other == player {
			continue
		}
		for _, piece := range other.Pieces {
			if piece.OnTrack() && piece.Position == pos {
				return true
			}
		}
	}
	return false
}
