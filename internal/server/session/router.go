// internal/server/session/router.go
package session

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/obrien-tchaleu/ludo-server/internal/server/room"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/protocol"
)

var errAnonymous = errors.New("missing identity")

// Session représente une connexion et l'identité qu'elle porte
type Session struct {
	ConnID        string
	UserID        int64
	Username      string
	Authenticated bool
}

// Router aiguille les messages entrants vers le gestionnaire de salles
type Router struct {
	rooms     *room.Manager
	sender    room.Notifier
	validator *protocol.Validator
	log       *zap.Logger
}

// NewRouter crée un nouveau routeur
func NewRouter(rooms *room.Manager, sender room.Notifier, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		rooms:     rooms,
		sender:    sender,
		validator: protocol.NewValidator(),
		log:       log,
	}
}

// Connect enregistre l'identité d'une connexion authentifiée
func (r *Router) Connect(s *Session) {
	if s.Authenticated {
		r.rooms.Identify(s.ConnID, s.UserID)
	}
	r.log.Debug("session opened",
		zap.String("conn_id", s.ConnID),
		zap.Bool("authenticated", s.Authenticated),
	)
}

// Disconnect libère le siège éventuel d'une connexion fermée
func (r *Router) Disconnect(s *Session) {
	r.rooms.Forget(s.ConnID)
	r.log.Debug("session closed", zap.String("conn_id", s.ConnID))
}

// HandleFrame décode puis traite une trame brute
func (r *Router) HandleFrame(s *Session, data []byte) {
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		r.sendError(s, constants.ErrInvalidPayload, err.Error())
		return
	}
	r.Handle(s, msg)
}

// Handle traite un message reçu
func (r *Router) Handle(s *Session, msg *models.NetworkMessage) {
	if err := r.validator.ValidateMessage(msg); err != nil {
		code := constants.ErrInvalidPayload
		if errors.Is(err, protocol.ErrUnknownType) {
			code = constants.ErrUnknownMessage
		}
		r.sendError(s, code, err.Error())
		return
	}

	switch msg.Type {
	case constants.MsgCreateRoom:
		r.handleCreateRoom(s, msg)
	case constants.MsgJoinRoom:
		r.handleJoinRoom(s, msg)
	case constants.MsgReady:
		r.rooms.SetReady(s.ConnID)
	case constants.MsgRollDice:
		var data models.RoomActionPayload
		_ = protocol.ExtractPayload(msg.Payload, &data)
		r.rooms.RollDice(s.ConnID, roomOf(msg, data.RoomID))
	case constants.MsgMovePiece:
		var data models.MovePiecePayload
		_ = protocol.ExtractPayload(msg.Payload, &data)
		r.rooms.MovePiece(s.ConnID, roomOf(msg, data.RoomID), data.PieceIndex)
	case constants.MsgInvite:
		r.handleInvite(s, msg)
	case constants.MsgLeaveRoom:
		if err := r.rooms.LeaveRoom(s.ConnID); err != nil {
			r.replyError(s, err)
		}
	case constants.MsgListRooms:
		r.send(s, models.NewMessage(constants.MsgRoomListUpdated, models.RoomListPayload{
			Rooms: r.rooms.ListRooms(),
		}))
	case constants.MsgPing:
		r.send(s, models.NewMessage(constants.MsgPong, nil))
	}
}

// handleCreateRoom crée une nouvelle salle
func (r *Router) handleCreateRoom(s *Session, msg *models.NetworkMessage) {
	var data models.CreateRoomPayload
	_ = protocol.ExtractPayload(msg.Payload, &data)

	if err := r.identify(s, data.UserID, data.Username); err != nil {
		r.sendError(s, constants.ErrUnauthorized, err.Error())
		return
	}

	_, err := r.rooms.CreateRoom(s.ConnID, room.CreateRequest{
		Name:        data.Name,
		UserID:      s.UserID,
		DisplayName: s.Username,
		IsPrivate:   data.IsPrivate,
		Scripted:    data.Scripted,
	})
	if err != nil {
		r.replyError(s, err)
	}
}

// handleJoinRoom permet à un joueur de rejoindre une salle
func (r *Router) handleJoinRoom(s *Session, msg *models.NetworkMessage) {
	var data models.JoinRoomPayload
	_ = protocol.ExtractPayload(msg.Payload, &data)

	if err := r.identify(s, data.UserID, data.Username); err != nil {
		r.sendError(s, constants.ErrUnauthorized, err.Error())
		return
	}

	if _, err := r.rooms.JoinRoom(s.ConnID, strings.TrimSpace(data.RoomID), s.UserID, s.Username); err != nil {
		r.replyError(s, err)
	}
}

func (r *Router) handleInvite(s *Session, msg *models.NetworkMessage) {
	var data models.InvitePayload
	_ = protocol.ExtractPayload(msg.Payload, &data)

	sent, err := r.rooms.Invite(s.ConnID, roomOf(msg, data.RoomID), data.TargetUserID)
	if err != nil {
		r.replyError(s, err)
		return
	}
	r.log.Debug("invitation sent",
		zap.String("conn_id", s.ConnID),
		zap.Int64("target", data.TargetUserID),
		zap.Int("connections", sent),
	)
}

// identify fixe l'identité d'une session non authentifiée depuis le payload
func (r *Router) identify(s *Session, userID int64, username string) error {
	if s.Authenticated {
		return nil
	}
	if userID <= 0 {
		return errAnonymous
	}
	if err := protocol.ValidateUsername(username); err != nil {
		return err
	}
	s.UserID = userID
	s.Username = strings.TrimSpace(username)
	return nil
}

// replyError traduit une erreur du gestionnaire en code réseau
func (r *Router) replyError(s *Session, err error) {
	r.sendError(s, ErrorCode(err), err.Error())
}

// ErrorCode retourne le code réseau associé à une erreur du gestionnaire
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return constants.ErrRoomNotFound
	case errors.Is(err, room.ErrRoomFull):
		return constants.ErrRoomFull
	case errors.Is(err, room.ErrGameAlreadyStarted):
		return constants.ErrGameAlreadyStarted
	case errors.Is(err, room.ErrAlreadyInRoom):
		return constants.ErrAlreadyInRoom
	case errors.Is(err, room.ErrNotInRoom):
		return constants.ErrNotInRoom
	default:
		return constants.ErrInternal
	}
}

// sendError envoie une erreur au client
func (r *Router) sendError(s *Session, code, message string) {
	r.send(s, models.NewMessage(constants.MsgError, models.ErrorPayload{
		Code:    code,
		Message: message,
	}))
}

func (r *Router) send(s *Session, msg *models.NetworkMessage) {
	r.sender.Send(s.ConnID, msg)
}

// roomOf préfère l'identifiant du payload à celui de l'enveloppe
func roomOf(msg *models.NetworkMessage, fromPayload string) string {
	if fromPayload != "" {
		return fromPayload
	}
	return msg.RoomID
}
