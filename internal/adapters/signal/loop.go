package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beacon/internal/core"
	"github.com/dkeye/Beacon/internal/domain"
)

// eventLoop is the steady state: an unordered merge of inbound client
// commands and room broadcast events. Go's select picks a ready case
// pseudo-randomly, so neither source can starve the other.
func (ctl *Controller) eventLoop(p *peer, room *core.Room, user *domain.User, sess core.Session) error {
	sub := room.Subscribe()
	if sub == nil {
		return CloseRoomClosed
	}
	defer sub.Close()

	for {
		select {
		case data, ok := <-p.in:
			if !ok {
				// Client disconnected.
				return nil
			}
			if err := ctl.handleCommand(p, room, sess, data); err != nil {
				return err
			}
		case ev, ok := <-sub.C:
			if !ok {
				// Broadcast channel failed under us (subscriber lagged
				// or the room vanished without a RoomDelete).
				return CloseServerError
			}
			if err := forwardEvent(p, user.ID, ev); err != nil {
				return err
			}
		}
	}
}

func (ctl *Controller) handleCommand(p *peer, room *core.Room, sess core.Session, data []byte) error {
	cmd, err := parseCommand(data)
	if err != nil {
		return CloseInvalidData
	}
	switch cmd.Type {
	case CommandConnectTransport:
		if err := sess.Connect(cmd.ConnectData); err != nil {
			// Recoverable: report in-band, keep the connection alive.
			log.Warn().Err(err).Str("module", "signal").Msg("transport connect failed")
			if err := p.sendJSON(transportConnectError(cmd)); err != nil {
				return CloseServerError
			}
			return nil
		}
		if err := p.sendJSON(connectTransportReply{ID: cmd.ID, Type: CommandConnectTransport}); err != nil {
			return CloseServerError
		}
	case CommandRoomInfo:
		reply := roomInfoReply{
			ID:           cmd.ID,
			Type:         CommandRoomInfo,
			RoomID:       room.ID(),
			VideoAllowed: false,
			Users:        room.Users().Snapshot(),
		}
		if err := p.sendJSON(reply); err != nil {
			return CloseServerError
		}
	default:
		// Repeating a handshake command counts too.
		return CloseInvalidState
	}
	return nil
}

// forwardEvent translates a room broadcast into an outbound event. A
// user's own actions are never echoed back, except UserLeft for our own
// id, which means this connection was removed elsewhere.
func forwardEvent(p *peer, self domain.UserID, ev core.RoomEvent) error {
	switch ev.Kind {
	case core.EventUserJoined:
		if ev.UserID == self {
			return nil
		}
		return sendEvent(p, userEvent{Type: eventUserJoined, UserID: ev.UserID})
	case core.EventUserLeft:
		if ev.UserID == self {
			return CloseKicked
		}
		return sendEvent(p, userEvent{Type: eventUserLeft, UserID: ev.UserID})
	case core.EventUserStartProduce:
		if ev.UserID == self {
			return nil
		}
		return sendEvent(p, userEvent{Type: eventUserStartProduce, UserID: ev.UserID, ProduceType: ev.Produce})
	case core.EventUserStopProduce:
		if ev.UserID == self {
			return nil
		}
		return sendEvent(p, userEvent{Type: eventUserStopProduce, UserID: ev.UserID, ProduceType: ev.Produce})
	case core.EventRoomDelete:
		return CloseRoomClosed
	}
	return nil
}

func sendEvent(p *peer, ev userEvent) error {
	if err := p.sendJSON(ev); err != nil {
		return CloseServerError
	}
	return nil
}
