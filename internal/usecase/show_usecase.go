package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/overbid/liveshow/internal/domain/models"
	"github.com/overbid/liveshow/internal/infra/adapters/memory"
	"github.com/overbid/liveshow/internal/infra/adapters/postgres/repository"
	"github.com/overbid/liveshow/pkg/liveshow/events"
)

type ShowUsecase interface {
	Create(ctx context.Context, hostID uuid.UUID, hostName, title string) (*models.Show, error)
	Start(ctx context.Context, showID uuid.UUID) error
	End(ctx context.Context, showID uuid.UUID) error

	Get(ctx context.Context, showID uuid.UUID) (*models.Show, error)
	ListLive(ctx context.Context) ([]*models.Show, error)

	// SetAudioMuted flips the room-level muted flag and broadcasts it so
	// every viewer sees the host is muted.
	SetAudioMuted(ctx context.Context, showID uuid.UUID, muted bool) error
}

type showUsecase struct {
	showRepo repository.ShowRepository

	liveRepo    memory.LiveStateRepository
	membersRepo memory.RoomMembersRepository
	wsRepo      memory.WebsocketConnectionRepository
}

func NewShowUsecase(
	showRepo repository.ShowRepository,
	liveRepo memory.LiveStateRepository,
	membersRepo memory.RoomMembersRepository,
	wsRepo memory.WebsocketConnectionRepository,
) ShowUsecase {
	return &showUsecase{
		showRepo:    showRepo,
		liveRepo:    liveRepo,
		membersRepo: membersRepo,
		wsRepo:      wsRepo,
	}
}

func (s *showUsecase) Create(ctx context.Context, hostID uuid.UUID, hostName, title string) (*models.Show, error) {
	show := models.NewShow(hostID, hostName, title)

	if err := s.showRepo.Create(ctx, show); err != nil {
		return nil, fmt.Errorf("create show: %w", err)
	}

	return show, nil
}

func (s *showUsecase) Start(ctx context.Context, showID uuid.UUID) error {
	if err := s.showRepo.SetStarted(ctx, showID); err != nil {
		return fmt.Errorf("start show: %w", err)
	}

	return nil
}

func (s *showUsecase) End(ctx context.Context, showID uuid.UUID) error {
	if err := s.showRepo.SetEnded(ctx, showID); err != nil {
		return fmt.Errorf("end show: %w", err)
	}

	s.broadcast(ctx, showID, events.TypeRoomEnded, events.RoomEnded{RoomID: showID.String()})
	s.liveRepo.Remove(showID)

	return nil
}

func (s *showUsecase) Get(ctx context.Context, showID uuid.UUID) (*models.Show, error) {
	show, err := s.showRepo.GetByID(ctx, showID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrShowNotFound, showID)
	}

	return show, nil
}

func (s *showUsecase) ListLive(ctx context.Context) ([]*models.Show, error) {
	shows, err := s.showRepo.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list live shows: %w", err)
	}

	return shows, nil
}

func (s *showUsecase) SetAudioMuted(ctx context.Context, showID uuid.UUID, muted bool) error {
	if err := s.showRepo.SetAudioMuted(ctx, showID, muted); err != nil {
		return fmt.Errorf("set audio muted: %w", err)
	}

	s.broadcast(ctx, showID, events.TypeAudioMuted, events.AudioMuted{
		RoomID: showID.String(),
		Muted:  muted,
	})

	return nil
}

func (s *showUsecase) broadcast(ctx context.Context, showID uuid.UUID, eventType string, payload any) {
	env, err := events.Marshal(eventType, payload)
	if err != nil {
		return
	}

	// Live state only exists while members are connected; a show with no
	// state has nobody to notify, and recreating it after end-of-room
	// would leak an empty entry.
	live, ok := s.liveRepo.Get(showID)
	if !ok {
		return
	}

	live.Broadcast(func(seq uint64) {
		env.Seq = seq

		for _, member := range s.membersRepo.GetMembers(ctx, showID) {
			s.wsRepo.Write(member.UserID, env)
		}
	})
}
