package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/overbid/liveshow/internal/domain/models"
)

type ShowRepository interface {
	Create(ctx context.Context, show *models.Show) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Show, error)
	ListLive(ctx context.Context) ([]*models.Show, error)

	SetStarted(ctx context.Context, id uuid.UUID) error
	SetEnded(ctx context.Context, id uuid.UUID) error
	SetAudioMuted(ctx context.Context, id uuid.UUID, muted bool) error
	SetViewerCount(ctx context.Context, id uuid.UUID, count int) error
}

type showRepo struct {
	db *sqlx.DB
}

func NewShowRepo(db *sqlx.DB) ShowRepository {
	return &showRepo{db: db}
}

func (r *showRepo) Create(ctx context.Context, show *models.Show) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO shows (id, host_id, host_name, title, started, ended, audio_muted, viewer_count, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		show.ID,
		show.HostID,
		show.HostName,
		show.Title,
		show.Started,
		show.Ended,
		show.AudioMuted,
		show.ViewerCount,
		show.CreatedAt,
		show.UpdatedAt,
	)

	return err
}

func (r *showRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Show, error) {
	var show models.Show

	err := r.db.GetContext(ctx, &show, "SELECT * FROM shows WHERE id = $1", id)
	if err != nil {
		return nil, err
	}

	return &show, nil
}

func (r *showRepo) ListLive(ctx context.Context) ([]*models.Show, error) {
	var shows []*models.Show

	err := r.db.SelectContext(ctx, &shows, "SELECT * FROM shows WHERE started = true AND ended = false ORDER BY viewer_count DESC")
	if err != nil {
		return nil, err
	}

	return shows, nil
}

func (r *showRepo) SetStarted(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE shows SET started = true, started_at = $1, updated_at = $1 WHERE id = $2",
		time.Now(),
		id,
	)

	return err
}

func (r *showRepo) SetEnded(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE shows SET ended = true, ended_at = $1, updated_at = $1 WHERE id = $2",
		time.Now(),
		id,
	)

	return err
}

func (r *showRepo) SetAudioMuted(ctx context.Context, id uuid.UUID, muted bool) error {
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE shows SET audio_muted = $1, updated_at = $2 WHERE id = $3",
		muted,
		time.Now(),
		id,
	)

	return err
}

func (r *showRepo) SetViewerCount(ctx context.Context, id uuid.UUID, count int) error {
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE shows SET viewer_count = $1, updated_at = $2 WHERE id = $3",
		count,
		time.Now(),
		id,
	)

	return err
}
