// internal/shared/protocol/validator.go
package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
)

// ErrUnknownType est retourné pour un type de message non pris en charge
var ErrUnknownType = errors.New("unknown message type")

// Validator valide les messages et payloads
type Validator struct{}

// NewValidator crée un nouveau validateur
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateMessage valide un message entrant
func (v *Validator) ValidateMessage(msg *models.NetworkMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	if msg.Type == "" {
		return fmt.Errorf("message type is empty")
	}

	switch msg.Type {
	case constants.MsgCreateRoom:
		return v.validateCreateRoom(msg.Payload)
	case constants.MsgJoinRoom:
		return v.validateJoinRoom(msg.Payload)
	case constants.MsgMovePiece:
		var data models.MovePiecePayload
		return ExtractPayload(msg.Payload, &data)
	case constants.MsgInvite:
		return v.validateInvite(msg.Payload)
	case constants.MsgRollDice, constants.MsgReady, constants.MsgLeaveRoom:
		var data models.RoomActionPayload
		return ExtractPayload(msg.Payload, &data)
	case constants.MsgListRooms, constants.MsgPing:
		return nil
	default:
		return fmt.Errorf("%s: %w", msg.Type, ErrUnknownType)
	}
}

// validateCreateRoom valide le payload de création de salle
func (v *Validator) validateCreateRoom(payload interface{}) error {
	var data models.CreateRoomPayload
	if err := ExtractPayload(payload, &data); err != nil {
		return err
	}
	return ValidateRoomName(data.Name)
}

// validateJoinRoom valide le payload de join room
func (v *Validator) validateJoinRoom(payload interface{}) error {
	var data models.JoinRoomPayload
	if err := ExtractPayload(payload, &data); err != nil {
		return err
	}

	if strings.TrimSpace(data.RoomID) == "" {
		return fmt.Errorf("room ID cannot be empty")
	}
	return nil
}

func (v *Validator) validateInvite(payload interface{}) error {
	var data models.InvitePayload
	if err := ExtractPayload(payload, &data); err != nil {
		return err
	}
	if data.TargetUserID == 0 {
		return fmt.Errorf("target user cannot be empty")
	}
	return nil
}

// Bornes des noms affichés
const (
	minUsernameLen = 3
	maxUsernameLen = 20
	maxRoomNameLen = 50
)

// ValidateUsername accepte 3 à 20 caractères parmi [A-Za-z0-9_-]
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)

	switch n := len(username); {
	case n == 0:
		return fmt.Errorf("username cannot be empty")
	case n < minUsernameLen:
		return fmt.Errorf("username must be at least %d characters", minUsernameLen)
	case n > maxUsernameLen:
		return fmt.Errorf("username must be at most %d characters", maxUsernameLen)
	}

	for _, r := range username {
		if !usernameRune(r) {
			return fmt.Errorf("username contains invalid character %q", r)
		}
	}
	return nil
}

func usernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	default:
		return r == '_' || r == '-'
	}
}

// ValidateRoomName exige un nom non vide d'au plus 50 caractères
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxRoomNameLen {
		return fmt.Errorf("room name must be at most %d characters", maxRoomNameLen)
	}
	return nil
}
