package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/overbid/liveshow/internal/application/config"
)

// Peer is one media relay attendee: a server-side peer connection plus
// the local tracks the host's media is written into.
type Peer struct {
	UserID     uuid.UUID
	ShowID     uuid.UUID
	IsHost     bool
	Conn       *webrtc.PeerConnection
	AudioTrack *webrtc.TrackLocalStaticRTP
	VideoTrack *webrtc.TrackLocalStaticRTP
}

func NewPeer(userID, showID uuid.UUID, isHost bool, cfg *config.Config) (*Peer, error) {
	iceServers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}
	if len(cfg.TurnUDPServer.URLs) > 0 {
		iceServers = append(iceServers, cfg.TurnUDPServer, cfg.TurnTCPServer)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "liveshow",
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "liveshow",
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	if _, err = pc.AddTrack(audioTrack); err != nil {
		return nil, fmt.Errorf("add audio track: %w", err)
	}

	if _, err = pc.AddTrack(videoTrack); err != nil {
		return nil, fmt.Errorf("add video track: %w", err)
	}

	return &Peer{
		UserID:     userID,
		ShowID:     showID,
		IsHost:     isHost,
		Conn:       pc,
		AudioTrack: audioTrack,
		VideoTrack: videoTrack,
	}, nil
}
