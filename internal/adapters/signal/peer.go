package signal

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const defaultWriteTimeout = 5 * time.Second

// peer owns the two halves of one signaling socket. A reader goroutine
// pumps inbound text frames into in; the connection goroutine is the
// only writer, which keeps the single-writer rule of the underlying
// connection.
type peer struct {
	conn         *websocket.Conn
	in           chan []byte
	done         chan struct{}
	writeTimeout time.Duration
}

func newPeer(conn *websocket.Conn, limiter *rate.Limiter, readLimit int64, writeTimeout time.Duration) *peer {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	p := &peer{
		conn:         conn,
		in:           make(chan []byte),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	go p.readFrames(limiter)
	return p
}

// readFrames feeds p.in until the socket yields an error or EOF, then
// closes it. Non-text frames (pings, binary) are skipped, never
// answered.
func (p *peer) readFrames(limiter *rate.Limiter) {
	defer close(p.in)
	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if limiter != nil && !limiter.Allow() {
			log.Warn().Str("module", "signal").Msg("inbound rate limit exceeded, dropping frame")
			continue
		}
		select {
		case p.in <- data:
		case <-p.done:
			return
		}
	}
}

// sendJSON marshals v and writes one text frame.
func (p *peer) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, b)
}

// sendClose writes a close frame with the given code and reason.
func (p *peer) sendClose(reason CloseReason) {
	msg := websocket.FormatCloseMessage(reason.Code(), reason.Error())
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(p.writeTimeout))
}

// sendPlainClose writes a close frame with no code, used on clean exit.
func (p *peer) sendPlainClose() {
	_ = p.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(p.writeTimeout))
}

func (p *peer) close() {
	close(p.done)
	_ = p.conn.Close()
}
