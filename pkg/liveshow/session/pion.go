package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// signalMessage is the envelope of the media signaling socket.
type signalMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type joinedPayload struct {
	ParticipantID string `json:"participant_id"`
	CanPublish    bool   `json:"can_publish"`
}

type participantPayload struct {
	ParticipantID string `json:"participant_id"`
	IsHost        bool   `json:"is_host"`
}

type sdpPayload struct {
	SDP string `json:"sdp"`
}

type candidatePayload struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// RTPSink consumes remote media; playback lives outside this package.
type RTPSink func(kind TrackKind, pkt *rtp.Packet)

// PionSession is the webrtc-backed MediaSession. Signaling runs over a
// websocket to the media endpoint; the peer connection carries the media.
type PionSession struct {
	iceServers []webrtc.ICEServer
	sink       RTPSink

	mu         sync.Mutex
	ws         *websocket.Conn
	wsWriteMu  sync.Mutex
	pc         *webrtc.PeerConnection
	audioTrack *webrtc.TrackLocalStaticRTP
	videoTrack *webrtc.TrackLocalStaticRTP

	canPublish    atomic.Bool
	cameraOn      atomic.Bool
	micOn         atomic.Bool
	playbackMuted atomic.Bool

	closed chan struct{}
}

func NewPionSession(iceServers []webrtc.ICEServer, sink RTPSink) *PionSession {
	return &PionSession{
		iceServers: iceServers,
		sink:       sink,
		closed:     make(chan struct{}),
	}
}

func (s *PionSession) Connect(ctx context.Context, url, token string, ev SessionEvents) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dial media endpoint: %w", err)
	}

	if err := s.writeSignal(ws, "join", nil); err != nil {
		ws.Close()
		return fmt.Errorf("send join: %w", err)
	}

	// The relay answers join with the server-issued capability flag
	// before any SDP flows.
	var joinMsg signalMessage
	if err := ws.ReadJSON(&joinMsg); err != nil {
		ws.Close()
		return fmt.Errorf("read join ack: %w", err)
	}
	if joinMsg.Type != "joined" {
		ws.Close()
		return fmt.Errorf("unexpected join ack type %q", joinMsg.Type)
	}

	var joined joinedPayload
	if err := json.Unmarshal(joinMsg.Data, &joined); err != nil {
		ws.Close()
		return fmt.Errorf("decode join ack: %w", err)
	}
	s.canPublish.Store(joined.CanPublish)

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: s.iceServers})
	if err != nil {
		ws.Close()
		return fmt.Errorf("create peer connection: %w", err)
	}

	s.mu.Lock()
	s.ws = ws
	s.pc = pc
	s.mu.Unlock()

	if joined.CanPublish {
		if err := s.addLocalTracks(pc); err != nil {
			s.Close()
			return err
		}
	} else {
		// Receive-only transceivers so the host's tracks arrive.
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				s.Close()
				return fmt.Errorf("add recvonly transceiver: %w", err)
			}
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := TrackAudio
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			kind = TrackVideo
		}

		if ev.OnHostTrack != nil {
			ev.OnHostTrack(kind, true)
		}

		go s.readRemoteTrack(track, kind, ev)
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}

		if err := s.writeSignal(ws, "candidate", candidatePayload{Candidate: c.ToJSON()}); err != nil {
			slog.Warn("send ice candidate", slog.Any("error", err))
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if ev.OnStateChange == nil {
			return
		}

		switch state {
		case webrtc.PeerConnectionStateConnected:
			ev.OnStateChange(TransportConnected)
		case webrtc.PeerConnectionStateDisconnected:
			ev.OnStateChange(TransportReconnecting)
		case webrtc.PeerConnectionStateFailed:
			ev.OnStateChange(TransportFailed)
		case webrtc.PeerConnectionStateClosed:
			ev.OnStateChange(TransportClosed)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		s.Close()
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		s.Close()
		return fmt.Errorf("set local description: %w", err)
	}
	if err := s.writeSignal(ws, "offer", sdpPayload{SDP: offer.SDP}); err != nil {
		s.Close()
		return fmt.Errorf("send offer: %w", err)
	}

	go s.signalLoop(ws, pc, ev)

	return nil
}

func (s *PionSession) addLocalTracks(pc *webrtc.PeerConnection) error {
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "liveshow",
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}

	video, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "liveshow",
	)
	if err != nil {
		return fmt.Errorf("create video track: %w", err)
	}

	if _, err := pc.AddTrack(audio); err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}
	if _, err := pc.AddTrack(video); err != nil {
		return fmt.Errorf("add video track: %w", err)
	}

	s.mu.Lock()
	s.audioTrack = audio
	s.videoTrack = video
	s.mu.Unlock()

	return nil
}

func (s *PionSession) signalLoop(ws *websocket.Conn, pc *webrtc.PeerConnection, ev SessionEvents) {
	for {
		var msg signalMessage
		if err := ws.ReadJSON(&msg); err != nil {
			select {
			case <-s.closed:
			default:
				slog.Warn("media signaling read", slog.Any("error", err))
			}
			return
		}

		switch msg.Type {
		case "answer":
			var p sdpPayload
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				continue
			}
			if err := pc.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer,
				SDP:  p.SDP,
			}); err != nil {
				slog.Warn("set remote description", slog.Any("error", err))
			}

		case "candidate":
			var p candidatePayload
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				continue
			}
			if err := pc.AddICECandidate(p.Candidate); err != nil {
				slog.Warn("add ice candidate", slog.Any("error", err))
			}

		case "participant-joined":
			var p participantPayload
			if json.Unmarshal(msg.Data, &p) == nil && ev.OnParticipantJoined != nil {
				ev.OnParticipantJoined(p.ParticipantID, p.IsHost)
			}

		case "participant-left":
			var p participantPayload
			if json.Unmarshal(msg.Data, &p) == nil && ev.OnParticipantLeft != nil {
				ev.OnParticipantLeft(p.ParticipantID)
			}
		}
	}
}

func (s *PionSession) readRemoteTrack(track *webrtc.TrackRemote, kind TrackKind, ev SessionEvents) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("read remote track", slog.Any("error", err))
			}

			if ev.OnHostTrack != nil {
				ev.OnHostTrack(kind, false)
			}
			return
		}

		if s.playbackMuted.Load() && kind == TrackAudio {
			continue
		}

		if s.sink != nil {
			s.sink(kind, pkt)
		}
	}
}

func (s *PionSession) writeSignal(ws *websocket.Conn, msgType string, payload any) error {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = b
	}

	s.wsWriteMu.Lock()
	defer s.wsWriteMu.Unlock()

	return ws.WriteJSON(signalMessage{Type: msgType, Data: data})
}

func (s *PionSession) CanPublish() bool {
	return s.canPublish.Load()
}

// AudioTrack exposes the local audio track for a capture pipeline.
func (s *PionSession) AudioTrack() *webrtc.TrackLocalStaticRTP {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.audioTrack
}

// VideoTrack exposes the local video track for a capture pipeline.
func (s *PionSession) VideoTrack() *webrtc.TrackLocalStaticRTP {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.videoTrack
}

// CameraEnabled reports whether the capture pipeline should feed the
// video track.
func (s *PionSession) CameraEnabled() bool { return s.cameraOn.Load() }

// MicrophoneEnabled reports whether the capture pipeline should feed the
// audio track.
func (s *PionSession) MicrophoneEnabled() bool { return s.micOn.Load() }

func (s *PionSession) SetCameraEnabled(enabled bool) error {
	s.mu.Lock()
	track := s.videoTrack
	s.mu.Unlock()

	if track == nil {
		return errors.New("no publish capability")
	}

	s.cameraOn.Store(enabled)

	return nil
}

func (s *PionSession) SetMicrophoneEnabled(enabled bool) error {
	s.mu.Lock()
	track := s.audioTrack
	s.mu.Unlock()

	if track == nil {
		return errors.New("no publish capability")
	}

	s.micOn.Store(enabled)

	return nil
}

func (s *PionSession) SetPlaybackMuted(muted bool) {
	s.playbackMuted.Store(muted)
}

// Close releases the peer connection, the signaling socket, and with them
// every local device handle. Safe to call more than once.
func (s *PionSession) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
		close(s.closed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			errs = append(errs, err)
		}
		s.pc = nil
	}

	if s.ws != nil {
		if err := s.ws.Close(); err != nil {
			errs = append(errs, err)
		}
		s.ws = nil
	}

	s.audioTrack = nil
	s.videoTrack = nil

	return errors.Join(errs...)
}
