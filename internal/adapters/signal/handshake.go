package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beacon/internal/core"
	"github.com/dkeye/Beacon/internal/domain"
)

// authenticate drives the first handshake phase. It returns
// (nil, nil, nil) when the client disconnects before authenticating.
// Once Register succeeds the returned user is non-nil even on error, so
// the caller owns membership cleanup from that point on.
func (ctl *Controller) authenticate(p *peer) (*core.Room, *domain.User, error) {
	data, ok := <-p.in
	if !ok {
		// Client disconnected before they authenticated.
		return nil, nil, nil
	}
	cmd, err := parseCommand(data)
	if err != nil {
		return nil, nil, CloseInvalidData
	}
	if cmd.Type != CommandAuthenticate {
		return nil, nil, CloseInvalidState
	}

	room, ok := ctl.rooms.Get(domain.RoomID(cmd.RoomID))
	if !ok {
		return nil, nil, CloseUnauthorized
	}
	user, ok := room.Users().Register(cmd.Token)
	if !ok {
		return nil, nil, CloseUnauthorized
	}

	router := room.Router()
	if router == nil {
		return room, user, CloseRoomClosed
	}

	reply := authenticateReply{
		ID:              cmd.ID,
		Type:            CommandAuthenticate,
		UserID:          user.ID,
		RoomID:          room.ID(),
		RTPCapabilities: router.RTPCapabilities(),
	}
	if err := p.sendJSON(reply); err != nil {
		return room, user, CloseServerError
	}

	log.Info().Str("module", "signal").Str("room", string(room.ID())).Str("user", string(user.ID)).Msg("authenticated")
	return room, user, nil
}

// initializeTransports drives the second handshake phase. It returns
// (nil, nil) when the client disconnects before completing it; the user
// never reached active state and the caller releases membership.
func (ctl *Controller) initializeTransports(p *peer, room *core.Room, user *domain.User) (core.Session, error) {
	data, ok := <-p.in
	if !ok {
		return nil, nil
	}
	cmd, err := parseCommand(data)
	if err != nil {
		return nil, CloseInvalidData
	}
	if cmd.Type != CommandInitializeTransports {
		return nil, CloseInvalidState
	}

	router := room.Router()
	if router == nil {
		return nil, CloseRoomClosed
	}
	sess, err := ctl.transports.Initialize(router, cmd.InitData)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(user.ID)).Msg("transport init failed")
		return nil, CloseServerError
	}
	replyData, err := sess.InitData()
	if err != nil {
		sess.Close()
		log.Error().Err(err).Str("module", "signal").Str("user", string(user.ID)).Msg("transport init data failed")
		return nil, CloseServerError
	}

	reply := initializeTransportsReply{
		ID:        cmd.ID,
		Type:      CommandInitializeTransports,
		ReplyData: replyData,
	}
	if err := p.sendJSON(reply); err != nil {
		sess.Close()
		return nil, CloseServerError
	}

	log.Info().Str("module", "signal").Str("user", string(user.ID)).Msg("transports initialized")
	return sess, nil
}
