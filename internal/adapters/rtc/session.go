package rtc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beacon/internal/core"
)

// Factory implements core.TransportFactory on pion's ORTC API: each
// session is an ICE gatherer plus ICE and DTLS transports, connected
// later with client-supplied parameters.
type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

// initRequest carries client hints. Nothing in it is required today;
// unknown fields are ignored.
type initRequest struct {
	ForceTCP bool `json:"force_tcp,omitempty"`
}

func (f *Factory) Initialize(router core.Router, initData json.RawMessage) (core.Session, error) {
	rt, ok := router.(*Router)
	if !ok {
		return nil, errors.New("rtc: router was not created by this provider")
	}
	if len(initData) > 0 {
		var req initRequest
		if err := json.Unmarshal(initData, &req); err != nil {
			return nil, fmt.Errorf("parse init data: %w", err)
		}
	}

	gatherer, err := rt.api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: rt.iceServers})
	if err != nil {
		return nil, fmt.Errorf("new ice gatherer: %w", err)
	}
	ice := rt.api.NewICETransport(gatherer)
	dtls, err := rt.api.NewDTLSTransport(ice, nil)
	if err != nil {
		return nil, fmt.Errorf("new dtls transport: %w", err)
	}

	gathered := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gathered)
		}
	})
	if err := gatherer.Gather(); err != nil {
		return nil, fmt.Errorf("ice gather: %w", err)
	}
	<-gathered

	return &Session{gatherer: gatherer, ice: ice, dtls: dtls}, nil
}

// Session is one connection's negotiated transport pair.
type Session struct {
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
}

type transportInit struct {
	ICECandidates  []webrtc.ICECandidate `json:"ice_candidates"`
	ICEParameters  webrtc.ICEParameters  `json:"ice_parameters"`
	DTLSParameters webrtc.DTLSParameters `json:"dtls_parameters"`
}

func (s *Session) InitData() (json.RawMessage, error) {
	candidates, err := s.gatherer.GetLocalCandidates()
	if err != nil {
		return nil, fmt.Errorf("local candidates: %w", err)
	}
	iceParams, err := s.gatherer.GetLocalParameters()
	if err != nil {
		return nil, fmt.Errorf("local ice parameters: %w", err)
	}
	dtlsParams, err := s.dtls.GetLocalParameters()
	if err != nil {
		return nil, fmt.Errorf("local dtls parameters: %w", err)
	}
	return json.Marshal(transportInit{
		ICECandidates:  candidates,
		ICEParameters:  iceParams,
		DTLSParameters: dtlsParams,
	})
}

type connectRequest struct {
	ICECandidates  []webrtc.ICECandidate `json:"ice_candidates"`
	ICEParameters  webrtc.ICEParameters  `json:"ice_parameters"`
	DTLSParameters webrtc.DTLSParameters `json:"dtls_parameters"`
}

// Connect starts ICE (server side is controlled) and DTLS from the
// client's parameters.
func (s *Session) Connect(data json.RawMessage) error {
	var req connectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse connect data: %w", err)
	}
	if err := s.ice.SetRemoteCandidates(req.ICECandidates); err != nil {
		return fmt.Errorf("set remote candidates: %w", err)
	}
	role := webrtc.ICERoleControlled
	if err := s.ice.Start(s.gatherer, req.ICEParameters, &role); err != nil {
		return fmt.Errorf("ice start: %w", err)
	}
	if err := s.dtls.Start(req.DTLSParameters); err != nil {
		return fmt.Errorf("dtls start: %w", err)
	}
	return nil
}

func (s *Session) Close() {
	if err := s.dtls.Stop(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Msg("dtls stop")
	}
	if err := s.ice.Stop(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Msg("ice stop")
	}
	if err := s.gatherer.Close(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Msg("gatherer close")
	}
}
