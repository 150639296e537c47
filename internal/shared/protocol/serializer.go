// internal/shared/protocol/serializer.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
)

// ErrEmptyFrame est retourné pour une trame vide
var ErrEmptyFrame = errors.New("empty frame")

// EncodeMessage encode directement un message
func EncodeMessage(msg *models.NetworkMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// DecodeMessage décode directement un message depuis bytes.
// Le payload reste brut jusqu'à ExtractPayload.
func DecodeMessage(data []byte) (*models.NetworkMessage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var frame struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		RoomID  string          `json:"room_id"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	msg := &models.NetworkMessage{
		Type:   constants.MessageType(frame.Type),
		RoomID: frame.RoomID,
	}
	if len(frame.Payload) > 0 {
		msg.Payload = frame.Payload
	}
	return msg, nil
}

// ExtractPayload extrait et convertit le payload
func ExtractPayload(payload interface{}, target interface{}) error {
	var data []byte
	switch p := payload.(type) {
	case nil:
		data = []byte("{}")
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		data = encoded
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}
