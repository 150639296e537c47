// internal/shared/constants/constants.go
package constants

import "time"

const (
	// Configuration réseau
	DefaultServerPort = "8080"
	MaxPlayers        = 4
	MinPlayers        = 2

	// Configuration du plateau
	TotalCells      = 52
	HomeCells       = 6
	YardSlots       = 4
	TokensPerPlayer = 4

	// Règles du jeu
	DiceMin          = 1
	DiceMax          = 6
	RollToStart      = 6
	RollForExtraTurn = 6

	// Identité réservée au joueur scripté
	ScriptedUserID   int64 = -1
	ScriptedUsername       = "Computer"

	// Codes d'erreur
	ErrInvalidPayload     = "INVALID_PAYLOAD"
	ErrRoomFull           = "ROOM_FULL"
	ErrRoomNotFound       = "ROOM_NOT_FOUND"
	ErrGameAlreadyStarted = "GAME_ALREADY_STARTED"
	ErrAlreadyInRoom      = "ALREADY_IN_ROOM"
	ErrNotInRoom          = "NOT_IN_ROOM"
	ErrUnknownMessage     = "UNKNOWN_MESSAGE"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrInternal           = "INTERNAL"
)

// Délais par défaut, exprimés dans l'unité de temps du jeu (la seconde)
const (
	DefaultNoMoveDelay    = 2 * time.Second
	DefaultAIRollDelay    = 1 * time.Second
	DefaultAIMoveDelay    = 1500 * time.Millisecond
	DefaultTurnTimeout    = 30 * time.Second
	DefaultRecordTimeout  = 10 * time.Second
	DefaultMaxMessageSize = 4096
)

// Couleurs des joueurs
type PlayerColor string

const (
	ColorRed    PlayerColor = "red"
	ColorBlue   PlayerColor = "blue"
	ColorGreen  PlayerColor = "green"
	ColorYellow PlayerColor = "yellow"
)

// ColorOrder fixe la priorité d'attribution des couleurs
var ColorOrder = []PlayerColor{ColorRed, ColorBlue, ColorGreen, ColorYellow}

// États du jeu
type GameState string

const (
	StateWaiting  GameState = "waiting"
	StatePlaying  GameState = "playing"
	StateFinished GameState = "finished"
)

// Rank ordonne les phases ; une partie ne fait qu'avancer d'une phase à la suivante
func (s GameState) Rank() int {
	switch s {
	case StateWaiting:
		return 0
	case StatePlaying:
		return 1
	case StateFinished:
		return 2
	default:
		return -1
	}
}

// Sous-état du tour courant
type TurnState string

const (
	TurnAwaitingRoll    TurnState = "awaiting_roll"
	TurnAwaitingMove    TurnState = "awaiting_move"
	TurnAwaitingAdvance TurnState = "awaiting_advance"
)

// Zones d'un pion
type PieceZone string

const (
	ZoneYard     PieceZone = "yard"
	ZoneTrack    PieceZone = "track"
	ZoneLane     PieceZone = "lane"
	ZoneFinished PieceZone = "finished"
)

// Types de messages réseau
type MessageType string

const (
	// Client -> Serveur
	MsgJoinRoom   MessageType = "JOIN_ROOM"
	MsgCreateRoom MessageType = "CREATE_ROOM"
	MsgLeaveRoom  MessageType = "LEAVE_ROOM"
	MsgRollDice   MessageType = "ROLL_DICE"
	MsgMovePiece  MessageType = "MOVE_PIECE"
	MsgReady      MessageType = "PLAYER_READY"
	MsgInvite     MessageType = "INVITE_PLAYER"
	MsgListRooms  MessageType = "LIST_ROOMS"

	// Serveur -> Client
	MsgRoomCreated     MessageType = "ROOM_CREATED"
	MsgPlayerJoined    MessageType = "PLAYER_JOINED"
	MsgPlayerLeft      MessageType = "PLAYER_LEFT"
	MsgGameStarted     MessageType = "GAME_STARTED"
	MsgDiceRolled      MessageType = "DICE_ROLLED"
	MsgPieceMoved      MessageType = "PIECE_MOVED"
	MsgPieceCaptured   MessageType = "PIECE_CAPTURED"
	MsgTurnChanged     MessageType = "TURN_CHANGED"
	MsgGameWon         MessageType = "GAME_WON"
	MsgGameInvitation  MessageType = "GAME_INVITATION"
	MsgRoomListUpdated MessageType = "ROOM_LIST_UPDATED"
	MsgError           MessageType = "ERROR"

	// Bidirectionnel
	MsgPing MessageType = "PING"
	MsgPong MessageType = "PONG"
)

// Positions d'entrée sur la piste commune
var StartingPositions = map[PlayerColor]int{
	ColorRed:    0,
	ColorBlue:   13,
	ColorGreen:  26,
	ColorYellow: 39,
}
