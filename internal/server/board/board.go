// internal/server/board/board.go
package board

import (
	"fmt"
	"strings"

	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
)

// Ruleset choisit la règle d'arrivée des pions
type Ruleset string

const (
	// RulesHomeStretch ajoute un couloir privé de 6 cases et une arrivée au lancer exact
	RulesHomeStretch Ruleset = "home_stretch"
	// RulesLoop fait tourner les pions indéfiniment sur la piste, sans arrivée possible
	RulesLoop Ruleset = "loop"
)

const (
	// LaneEntryProgress est la progression à partir de laquelle un pion quitte la piste
	LaneEntryProgress = constants.TotalCells - 1
	// FinishProgress est la progression exacte qui termine un pion
	FinishProgress = LaneEntryProgress + constants.HomeCells - 1
)

// ParseRuleset convertit une valeur de configuration
func ParseRuleset(s string) (Ruleset, error) {
	switch Ruleset(strings.ToLower(strings.TrimSpace(s))) {
	case "", RulesHomeStretch:
		return RulesHomeStretch, nil
	case RulesLoop:
		return RulesLoop, nil
	default:
		return "", fmt.Errorf("unknown ruleset %q", s)
	}
}

// EntryOffset retourne la case d'entrée d'une couleur sur la piste commune
func EntryOffset(color constants.PlayerColor) int {
	return constants.StartingPositions[color]
}

// Advance calcule la case de piste atteinte après un lancer
func Advance(position, roll int) int {
	return (position + roll) % constants.TotalCells
}

// Destination décrit l'emplacement d'un pion après un déplacement
type Destination struct {
	Zone     constants.PieceZone
	Position int
	Progress int
}

// IsTrack indique si la destination est sur la piste commune
func (d Destination) IsTrack() bool { return d.Zone == constants.ZoneTrack }

// Target calcule la destination d'un pion pour un lancer donné.
// Le booléen est faux si le déplacement est illégal.
func Target(piece *models.Piece, color constants.PlayerColor, roll int, rules Ruleset) (Destination, bool) {
	if piece == nil || roll < constants.DiceMin || roll > constants.DiceMax {
		return Destination{}, false
	}

	switch piece.Zone {
	case constants.ZoneFinished:
		return Destination{}, false

	case constants.ZoneYard:
		if roll != constants.RollToStart {
			return Destination{}, false
		}
		return Destination{Zone: constants.ZoneTrack, Position: EntryOffset(color)}, true
	}

	progress := piece.Progress + roll
	if rules == RulesLoop {
		return Destination{
			Zone:     constants.ZoneTrack,
			Position: Advance(piece.Position, roll),
			Progress: progress,
		}, true
	}

	switch {
	case progress > FinishProgress:
		return Destination{}, false
	case progress == FinishProgress:
		return Destination{Zone: constants.ZoneFinished, Position: progress - LaneEntryProgress, Progress: progress}, true
	case progress >= LaneEntryProgress:
		return Destination{Zone: constants.ZoneLane, Position: progress - LaneEntryProgress, Progress: progress}, true
	default:
		return Destination{
			Zone:     constants.ZoneTrack,
			Position: Advance(EntryOffset(color), progress),
			Progress: progress,
		}, true
	}
}

// CanMove indique si un pion peut bouger avec ce lancer
func CanMove(piece *models.Piece, color constants.PlayerColor, roll int, rules Ruleset) bool {
	_, ok := Target(piece, color, roll, rules)
	return ok
}

// MovablePieces retourne les indices des pions jouables
func MovablePieces(p *models.Participant, roll int, rules Ruleset) []int {
	movable := make([]int, 0, len(p.Pieces))
	for i, piece := range p.Pieces {
		if CanMove(piece, p.Color, roll, rules) {
			movable = append(movable, i)
		}
	}
	return movable
}

// Apply place le pion à sa destination
func Apply(piece *models.Piece, dest Destination) {
	piece.Zone = dest.Zone
	piece.Position = dest.Position
	piece.Progress = dest.Progress
}

// FirstFreeYardSlot retourne la première case du foyer non occupée
func FirstFreeYardSlot(pieces []*models.Piece) int {
	used := make(map[int]bool, len(pieces))
	for _, p := range pieces {
		if p.IsHome() {
			used[p.Position] = true
		}
	}
	for slot := 0; slot < constants.YardSlots; slot++ {
		if !used[slot] {
			return slot
		}
	}
	return 0
}

// SendHome renvoie un pion capturé au foyer de son propriétaire
func SendHome(owner *models.Participant, piece *models.Piece) int {
	slot := FirstFreeYardSlot(owner.Pieces)
	piece.Zone = constants.ZoneYard
	piece.Position = slot
	piece.Progress = 0
	return slot
}

// AllFinished vérifie si tous les pions sont arrivés
func AllFinished(pieces []*models.Piece) bool {
	if len(pieces) == 0 {
		return false
	}
	for _, p := range pieces {
		if !p.IsFinished() {
			return false
		}
	}
	return true
}
