package signal

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dkeye/Beacon/internal/core"
)

// RateLimit throttles inbound messages per connection. Disabled by
// default; frames over the limit are dropped and logged, never
// answered.
type RateLimit struct {
	Enabled           bool
	MessagesPerSecond float64
	Burst             int
}

type Options struct {
	ReadLimit    int64
	WriteTimeout time.Duration
	RateLimit    RateLimit
}

// Controller accepts signaling sockets and runs the per-connection
// protocol engine against the room registry and transport factory.
type Controller struct {
	rooms      *core.RoomManager
	transports core.TransportFactory
	opts       Options
}

func NewController(rooms *core.RoomManager, transports core.TransportFactory, opts Options) *Controller {
	return &Controller{rooms: rooms, transports: transports, opts: opts}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleSignal(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	go ctl.serve(ws)
}

// serve supervises one connection: handshake, event loop, close frame.
// Every exit path funnels through here so the client always observes
// either a typed close or a plain close on clean success.
func (ctl *Controller) serve(ws *websocket.Conn) {
	var limiter *rate.Limiter
	if ctl.opts.RateLimit.Enabled {
		limiter = rate.NewLimiter(rate.Limit(ctl.opts.RateLimit.MessagesPerSecond), ctl.opts.RateLimit.Burst)
	}
	p := newPeer(ws, limiter, ctl.opts.ReadLimit, ctl.opts.WriteTimeout)
	defer p.close()

	err := ctl.handle(p)
	if err == nil {
		p.sendPlainClose()
		return
	}
	var reason CloseReason
	if !errors.As(err, &reason) {
		reason = CloseServerError
	}
	log.Info().Str("module", "signal").Int("code", reason.Code()).Str("reason", reason.Error()).Msg("closing connection")
	p.sendClose(reason)
}

// handle runs the two handshake phases then the event loop. Membership
// is released exactly once no matter which phase produced the terminal
// result; removal of an already-gone user is a no-op, so the cleanup
// can never mask the close frame.
func (ctl *Controller) handle(p *peer) error {
	room, user, err := ctl.authenticate(p)
	if user != nil {
		defer room.Users().Remove(user.ID)
	}
	if err != nil {
		return err
	}
	if room == nil {
		// Stream ended before any command; nothing to clean up.
		return nil
	}

	sess, err := ctl.initializeTransports(p, room, user)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	defer sess.Close()

	return ctl.eventLoop(p, room, user, sess)
}
