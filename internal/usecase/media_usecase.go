package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/overbid/liveshow/internal/application/config"
	"github.com/overbid/liveshow/internal/application/constant"
	"github.com/overbid/liveshow/internal/domain"
	"github.com/overbid/liveshow/internal/infra/adapters/memory"
)

// MediaUsecase is the server side of the media path: one relay peer per
// attendee, host RTP fanned out to every viewer.
type MediaUsecase interface {
	HandleJoin(ctx context.Context, userID, showID uuid.UUID, isHost bool) (*domain.Peer, error)
	HandleLeave(ctx context.Context, userID uuid.UUID)

	HandleOffer(ctx context.Context, userID uuid.UUID, sdp string) error
	HandleCandidate(ctx context.Context, userID uuid.UUID, candidate webrtc.ICECandidateInit) error
}

type mediaUsecase struct {
	cfg *config.Config

	pcRepo      memory.PeerConnectionRepository
	mediaWSRepo memory.WebsocketConnectionRepository
	membersRepo memory.RoomMembersRepository
}

func NewMediaUsecase(
	cfg *config.Config,
	pcRepo memory.PeerConnectionRepository,
	mediaWSRepo memory.WebsocketConnectionRepository,
	membersRepo memory.RoomMembersRepository,
) MediaUsecase {
	return &mediaUsecase{
		cfg:         cfg,
		pcRepo:      pcRepo,
		mediaWSRepo: mediaWSRepo,
		membersRepo: membersRepo,
	}
}

func (m *mediaUsecase) HandleJoin(ctx context.Context, userID, showID uuid.UUID, isHost bool) (*domain.Peer, error) {
	peer, err := domain.NewPeer(userID, showID, isHost, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("create relay peer: %w", err)
	}

	peer.Conn.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		// Only the host publishes; viewer tracks are ignored.
		if !isHost {
			return
		}

		go func() {
			for {
				pkt, _, err := track.ReadRTP()
				if err != nil {
					if !errors.Is(err, io.EOF) {
						slog.Error("RTP read error", slog.Any(constant.Error, err))
					}

					return
				}

				m.fanOutRTP(ctx, pkt, track.Kind(), userID, showID)
			}
		}()
	})

	peer.Conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}

		m.writeSignal(userID, "candidate", map[string]any{"candidate": c.ToJSON()})
	})

	m.pcRepo.Add(userID, peer)

	for _, member := range m.membersRepo.GetMembers(ctx, showID) {
		if member.UserID == userID {
			continue
		}

		m.writeSignal(member.UserID, "participant-joined", map[string]any{
			"participant_id": userID.String(),
			"is_host":        isHost,
		})
	}

	return peer, nil
}

func (m *mediaUsecase) HandleLeave(ctx context.Context, userID uuid.UUID) {
	peer, ok := m.pcRepo.Get(userID)
	if !ok {
		return
	}

	if err := peer.Conn.Close(); err != nil {
		slog.Warn("close relay peer", slog.Any(constant.Error, err))
	}

	m.pcRepo.Remove(userID)

	for _, member := range m.membersRepo.GetMembers(ctx, peer.ShowID) {
		if member.UserID == userID {
			continue
		}

		m.writeSignal(member.UserID, "participant-left", map[string]any{
			"participant_id": userID.String(),
		})
	}
}

func (m *mediaUsecase) HandleOffer(ctx context.Context, userID uuid.UUID, sdp string) error {
	peer, ok := m.pcRepo.Get(userID)
	if !ok {
		return fmt.Errorf("relay peer not found")
	}

	if err := peer.Conn.SetRemoteDescription(
		webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  sdp,
		},
	); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	answer, err := peer.Conn.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}

	if err = peer.Conn.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	m.writeSignal(userID, "answer", map[string]any{"sdp": answer.SDP})

	return nil
}

func (m *mediaUsecase) HandleCandidate(ctx context.Context, userID uuid.UUID, candidate webrtc.ICECandidateInit) error {
	peer, ok := m.pcRepo.Get(userID)
	if !ok {
		return fmt.Errorf("relay peer not found")
	}

	return peer.Conn.AddICECandidate(candidate)
}

func (m *mediaUsecase) fanOutRTP(ctx context.Context, pkt *rtp.Packet, kind webrtc.RTPCodecType, hostID, showID uuid.UUID) {
	for _, member := range m.membersRepo.GetMembers(ctx, showID) {
		if member.UserID == hostID {
			continue
		}

		peer, ok := m.pcRepo.Get(member.UserID)
		if !ok {
			continue
		}

		track := peer.AudioTrack
		if kind == webrtc.RTPCodecTypeVideo {
			track = peer.VideoTrack
		}

		if err := track.WriteRTP(pkt); err != nil {
			slog.Error(
				"write RTP",
				slog.Any(constant.Error, err),
				slog.Any(constant.ViewerID, member.UserID),
				slog.Any(constant.ShowID, showID),
			)
		}
	}
}

func (m *mediaUsecase) writeSignal(userID uuid.UUID, msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	m.mediaWSRepo.Write(userID, map[string]any{"type": msgType, "data": json.RawMessage(data)})
}
