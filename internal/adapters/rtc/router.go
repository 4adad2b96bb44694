package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Beacon/internal/core"
)

// Provider builds a media router per room.
type Provider struct {
	iceServers []webrtc.ICEServer
}

func NewProvider(stunServers []string) *Provider {
	servers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, u := range stunServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	if len(servers) == 0 {
		servers = append(servers, webrtc.ICEServer{URLs: []string{"stun:stun.l.google.com:19302"}})
	}
	return &Provider{iceServers: servers}
}

func (p *Provider) NewRouter() (core.Router, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(me))
	return &Router{api: api, iceServers: p.iceServers, caps: routerCapabilities()}, nil
}

// Router is the room-level routing context: one pion API instance plus
// the capability description sent to clients during authentication.
type Router struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	caps       core.RTPCapabilities
}

func (r *Router) RTPCapabilities() core.RTPCapabilities { return r.caps }

func (r *Router) Close() {}

func routerCapabilities() core.RTPCapabilities {
	return core.RTPCapabilities{
		Codecs: []webrtc.RTPCodecCapability{
			{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1"},
			{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		},
		HeaderExtensions: []string{
			"urn:ietf:params:rtp-hdrext:sdes:mid",
			"urn:ietf:params:rtp-hdrext:ssrc-audio-level",
		},
	}
}
