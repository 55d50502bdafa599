package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/overbid/liveshow/internal/application/config"
	"github.com/overbid/liveshow/internal/domain/output"
	"github.com/overbid/liveshow/internal/infra/adapters/postgres/repository"
)

const (
	RoleHost   = "host"
	RoleViewer = "viewer"
)

var (
	ErrShowNotFound = errors.New("show not found")
	ErrShowEnded    = errors.New("show has ended")
	ErrInvalidToken = errors.New("invalid room token")
)

// RoomClaims is the scoped room credential. Role is derived from stored
// show ownership, never from anything the client sent.
type RoomClaims struct {
	jwt.RegisteredClaims

	Room string `json:"room"`
	Name string `json:"name"`
	Role string `json:"role"`
	Pip  bool   `json:"pip,omitempty"`
}

type TokenUsecase interface {
	// Issue builds a room-scoped credential for one viewer of one show.
	Issue(ctx context.Context, showID, userID uuid.UUID, userName string) (*output.Credential, error)
	// Parse validates a room token and returns its claims.
	Parse(token string) (*RoomClaims, error)
}

type tokenUsecase struct {
	cfg      *config.Config
	showRepo repository.ShowRepository
}

func NewTokenUsecase(cfg *config.Config, showRepo repository.ShowRepository) TokenUsecase {
	return &tokenUsecase{
		cfg:      cfg,
		showRepo: showRepo,
	}
}

func (t *tokenUsecase) Issue(ctx context.Context, showID, userID uuid.UUID, userName string) (*output.Credential, error) {
	show, err := t.showRepo.GetByID(ctx, showID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrShowNotFound, showID)
	}

	if show.Ended {
		return nil, ErrShowEnded
	}

	role := RoleViewer
	if show.HostID == userID {
		role = RoleHost
	}

	token, err := t.sign(showID, userID, userName, role, false)
	if err != nil {
		return nil, fmt.Errorf("sign room token: %w", err)
	}

	pipToken, err := t.sign(showID, userID, userName, role, true)
	if err != nil {
		return nil, fmt.Errorf("sign pip token: %w", err)
	}

	return &output.Credential{
		Token:    token,
		URL:      t.cfg.MediaURL,
		Role:     role,
		PipToken: pipToken,
	}, nil
}

func (t *tokenUsecase) sign(showID, userID uuid.UUID, userName, role string, pip bool) (string, error) {
	claims := &RoomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.cfg.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID.String(),
		},
		Room: showID.String(),
		Name: userName,
		Role: role,
		Pip:  pip,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(t.cfg.JWTSecret))
}

func (t *tokenUsecase) Parse(tokenStr string) (*RoomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &RoomClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(t.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*RoomClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
