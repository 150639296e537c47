// internal/shared/models/models.go
package models

import (
	"time"

	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
)

// PlayerStats représente les statistiques cumulées d'un joueur
type PlayerStats struct {
	UserID      int64   `json:"user_id"`
	Username    string  `json:"username,omitempty"`
	GamesPlayed int     `json:"games_played"`
	GamesWon    int     `json:"games_won"`
	TotalMoves  int     `json:"total_moves"`
	WinRate     float64 `json:"win_rate"`
}

// Piece représente un pion
type Piece struct {
	Index    int                 `json:"index"`
	Zone     constants.PieceZone `json:"zone"`
	Position int                 `json:"position"` // case du foyer, de la piste ou du couloir selon Zone
	Progress int                 `json:"progress"` // cases parcourues depuis la sortie du foyer
}

// IsHome indique si le pion est dans son foyer
func (p *Piece) IsHome() bool { return p.Zone == constants.ZoneYard }

// IsFinished indique si le pion est arrivé
func (p *Piece) IsFinished() bool { return p.Zone == constants.ZoneFinished }

// OnTrack indique si le pion est sur la piste commune
func (p *Piece) OnTrack() bool { return p.Zone == constants.ZoneTrack }

// Participant représente un siège dans une salle
type Participant struct {
	ID          int64                 `json:"id"`
	Username    string                `json:"username"`
	Color       constants.PlayerColor `json:"color"`
	Pieces      []*Piece              `json:"pieces"`
	IsReady     bool                  `json:"is_ready"`
	IsScripted  bool                  `json:"is_scripted"`
	IsConnected bool                  `json:"is_connected"`
	MovesMade   int                   `json:"moves_made"`
	ConnID      string                `json:"-"`
}

// Room représente l'état canonique d'une salle
type Room struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Participants  []*Participant      `json:"participants"`
	State         constants.GameState `json:"state"`
	Turn          constants.TurnState `json:"turn_state"`
	CurrentPlayer int                 `json:"current_player"`
	LastRoll      int                 `json:"last_roll"`
	IsPrivate     bool                `json:"is_private"`
	IsScripted    bool                `json:"is_scripted"`
	CreatedAt     time.Time           `json:"created_at"`
	StartedAt     *time.Time          `json:"started_at,omitempty"`
	FinishedAt    *time.Time          `json:"finished_at,omitempty"`
	WinnerID      *int64              `json:"winner_id,omitempty"`
}

// CanMove indique si un déplacement est attendu
func (r *Room) CanMove() bool {
	return r.State == constants.StatePlaying && r.Turn == constants.TurnAwaitingMove
}

// Current retourne le participant dont c'est le tour
func (r *Room) Current() *Participant {
	if r.CurrentPlayer < 0 || r.CurrentPlayer >= len(r.Participants) {
		return nil
	}
	return r.Participants[r.CurrentPlayer]
}

// Winner retourne le gagnant s'il existe
func (r *Room) Winner() *Participant {
	if r.WinnerID == nil {
		return nil
	}
	for _, p := range r.Participants {
		if p.ID == *r.WinnerID {
			return p
		}
	}
	return nil
}

// Snapshot retourne une copie profonde, sûre à diffuser hors du verrou
func (r *Room) Snapshot() *Room {
	cp := *r
	cp.Participants = make([]*Participant, len(r.Participants))
	for i, p := range r.Participants {
		cp.Participants[i] = p.Clone()
	}
	if r.WinnerID != nil {
		id := *r.WinnerID
		cp.WinnerID = &id
	}
	return &cp
}

// Clone copie un participant et ses pions
func (p *Participant) Clone() *Participant {
	cp := *p
	cp.Pieces = make([]*Piece, len(p.Pieces))
	for i, piece := range p.Pieces {
		pc := *piece
		cp.Pieces[i] = &pc
	}
	return &cp
}

// PublicRoom est la projection exposée dans le lobby
type PublicRoom struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Players    int       `json:"players"`
	MaxPlayers int       `json:"max_players"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordParticipant décrit un participant dans l'historique
type RecordParticipant struct {
	ID         int64                 `json:"id"`
	Name       string                `json:"name"`
	Color      constants.PlayerColor `json:"color"`
	IsScripted bool                  `json:"is_scripted"`
	MovesMade  int                   `json:"moves_made"`
}

// GameRecord représente une partie terminée à archiver
type GameRecord struct {
	RoomID       string              `json:"room_id"`
	RoomName     string              `json:"room_name"`
	Participants []RecordParticipant `json:"participants"`
	WinnerID     int64               `json:"winner_id"`
	State        constants.GameState `json:"game_state"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}

// Résultats d'une partie vue par un joueur
const (
	ResultWon  = "Won"
	ResultLost = "Lost"
)

// HistoryEntry est une partie archivée du point de vue d'un joueur
type HistoryEntry struct {
	GameID          int64     `json:"game_id"`
	RoomID          string    `json:"room_id"`
	RoomName        string    `json:"room_name"`
	NumPlayers      int       `json:"num_players"`
	Color           string    `json:"color"`
	MovesMade       int       `json:"moves_made"`
	Result          string    `json:"result"`
	DurationSeconds int       `json:"duration_seconds"`
	EndedAt         time.Time `json:"ended_at"`
}

// NetworkMessage représente un message réseau
type NetworkMessage struct {
	Type      constants.MessageType `json:"type"`
	Payload   interface{}           `json:"payload,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
	RoomID    string                `json:"room_id,omitempty"`
}

// NewMessage construit un message horodaté
func NewMessage(msgType constants.MessageType, payload interface{}) *NetworkMessage {
	return &NetworkMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Payloads entrants
type CreateRoomPayload struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
	Scripted  bool   `json:"scripted"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
}

type JoinRoomPayload struct {
	RoomID   string `json:"room_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type RoomActionPayload struct {
	RoomID string `json:"room_id"`
}

type MovePiecePayload struct {
	RoomID     string `json:"room_id"`
	PieceIndex int    `json:"piece_index"`
}

type InvitePayload struct {
	RoomID       string `json:"room_id"`
	TargetUserID int64  `json:"target_user_id"`
}

// Payloads sortants
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RoomCreatedPayload struct {
	RoomID string `json:"room_id"`
	Room   *Room  `json:"room"`
}

type PlayerJoinedPayload struct {
	Room      *Room        `json:"room"`
	NewPlayer *Participant `json:"new_player"`
}

type RoomPayload struct {
	Room *Room `json:"room"`
}

type DiceRolledPayload struct {
	Player  string `json:"player"`
	Value   int    `json:"value"`
	CanMove bool   `json:"can_move"`
	Movable []int  `json:"movable"`
}

type PieceMovedPayload struct {
	Player      string `json:"player"`
	PieceIndex  int    `json:"piece_index"`
	OldPosition int    `json:"old_position"`
	NewPosition int    `json:"new_position"`
	Zone        string `json:"zone"`
}

type PieceCapturedPayload struct {
	CapturedBy   string `json:"captured_by"`
	CapturedFrom string `json:"captured_from"`
	PieceIndex   int    `json:"piece_index"`
	Position     int    `json:"position"`
	YardSlot     int    `json:"yard_slot"`
}

type TurnChangedPayload struct {
	CurrentPlayer string `json:"current_player"`
	PlayerIndex   int    `json:"player_index"`
}

type GameWonPayload struct {
	Winner   string `json:"winner"`
	WinnerID int64  `json:"winner_id"`
	Duration int    `json:"duration_seconds"`
}

type InvitationPayload struct {
	RoomID      string `json:"room_id"`
	RoomName    string `json:"room_name"`
	InviterName string `json:"inviter_name"`
}

type RoomListPayload struct {
	Rooms []PublicRoom `json:"rooms"`
}

// NewParticipant crée un participant humain avec ses pions au foyer
func NewParticipant(id int64, username string, color constants.PlayerColor) *Participant {
	pieces := make([]*Piece, constants.TokensPerPlayer)
	for i := 0; i < constants.TokensPerPlayer; i++ {
		pieces[i] = &Piece{
			Index:    i,
			Zone:     constants.ZoneYard,
			Position: i,
		}
	}

	return &Participant{
		ID:          id,
		Username:    username,
		Color:       color,
		Pieces:      pieces,
		IsConnected: true,
	}
}

// NewScriptedParticipant crée le participant scripté
func NewScriptedParticipant(color constants.PlayerColor) *Participant {
	p := NewParticipant(constants.ScriptedUserID, constants.ScriptedUsername, color)
	p.IsScripted = true
	p.IsReady = true
	p.IsConnected = false
	return p
}
