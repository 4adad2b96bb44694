package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Beacon/internal/core"
	"github.com/dkeye/Beacon/internal/domain"
)

type CommandType string

const (
	CommandAuthenticate         CommandType = "authenticate"
	CommandInitializeTransports CommandType = "initializeTransports"
	CommandConnectTransport     CommandType = "connectTransport"
	CommandRoomInfo             CommandType = "roomInfo"
)

// Command is the inbound envelope. Variant fields are flattened at the
// top level; only the ones matching Type carry meaning. ID is an opaque
// correlation token echoed back in replies and errors; nil is legal.
type Command struct {
	ID   *string     `json:"id,omitempty"`
	Type CommandType `json:"type"`

	RoomID      string          `json:"room_id,omitempty"`
	Token       string          `json:"token,omitempty"`
	InitData    json.RawMessage `json:"init_data,omitempty"`
	ConnectData json.RawMessage `json:"connect_data,omitempty"`
}

// parseCommand decodes one text frame. An unknown type tag is malformed
// input, not a sequencing error.
func parseCommand(data []byte) (*Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	switch c.Type {
	case CommandAuthenticate, CommandInitializeTransports, CommandConnectTransport, CommandRoomInfo:
		return &c, nil
	}
	return nil, fmt.Errorf("unknown command type %q", c.Type)
}

type authenticateReply struct {
	ID              *string              `json:"id,omitempty"`
	Type            CommandType          `json:"type"`
	UserID          domain.UserID        `json:"user_id"`
	RoomID          domain.RoomID        `json:"room_id"`
	RTPCapabilities core.RTPCapabilities `json:"rtp_capabilities"`
}

type initializeTransportsReply struct {
	ID        *string         `json:"id,omitempty"`
	Type      CommandType     `json:"type"`
	ReplyData json.RawMessage `json:"reply_data"`
}

type connectTransportReply struct {
	ID   *string     `json:"id,omitempty"`
	Type CommandType `json:"type"`
}

type roomInfoReply struct {
	ID           *string                           `json:"id,omitempty"`
	Type         CommandType                       `json:"type"`
	RoomID       domain.RoomID                     `json:"room_id"`
	VideoAllowed bool                              `json:"video_allowed"`
	Users        map[domain.UserID]domain.UserInfo `json:"users"`
}

const (
	eventUserJoined       = "userJoined"
	eventUserLeft         = "userLeft"
	eventUserStartProduce = "userStartProduce"
	eventUserStopProduce  = "userStopProduce"
)

// userEvent is the outbound event envelope. Events carry no correlation
// id; they are pushed, not requested.
type userEvent struct {
	Type        string             `json:"type"`
	UserID      domain.UserID      `json:"id"`
	ProduceType domain.ProduceType `json:"produce_type,omitempty"`
}

// ErrorMessage reports a recoverable command failure in-band while the
// connection stays open.
type ErrorMessage struct {
	ID      *string `json:"id,omitempty"`
	Type    string  `json:"type,omitempty"`
	Error   string  `json:"error"`
	Message string  `json:"message"`
}

const errTransportConnectionFailure = "TransportConnectionFailure"

func transportConnectError(cmd *Command) ErrorMessage {
	return ErrorMessage{
		ID:      cmd.ID,
		Type:    string(cmd.Type),
		Error:   errTransportConnectionFailure,
		Message: "an error occurred while trying to connect transport",
	}
}
