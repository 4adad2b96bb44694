package core

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// RTPCapabilities describes the media the room's router can route.
// Sent to the client in the authenticate reply so it can negotiate.
type RTPCapabilities struct {
	Codecs           []webrtc.RTPCodecCapability `json:"codecs"`
	HeaderExtensions []string                    `json:"headerExtensions"`
}

// Router is the room-level media routing context.
// Owned by the room; the room must Close() it on delete.
type Router interface {
	RTPCapabilities() RTPCapabilities
	Close()
}

// Session is the negotiated transport pair of a single connection.
type Session interface {
	// InitData derives the reply payload the client needs to connect
	// (local ICE candidates/parameters, DTLS parameters).
	InitData() (json.RawMessage, error)
	// Connect applies client-supplied ICE/DTLS parameters.
	Connect(data json.RawMessage) error
	Close()
}

// TransportFactory initializes transport sessions against a room router.
type TransportFactory interface {
	Initialize(router Router, initData json.RawMessage) (Session, error)
}

// RouterProvider builds a router for each new room.
type RouterProvider interface {
	NewRouter() (Router, error)
}
