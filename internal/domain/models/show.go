package models

import (
	"time"

	"github.com/google/uuid"
)

// Show is one live broadcasting room with its commerce state.
type Show struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	HostID      uuid.UUID  `json:"host_id" db:"host_id"`
	HostName    string     `json:"host_name" db:"host_name"`
	Title       string     `json:"title" db:"title"`
	Started     bool       `json:"started" db:"started"`
	Ended       bool       `json:"ended" db:"ended"`
	AudioMuted  bool       `json:"audio_muted" db:"audio_muted"`
	ViewerCount int        `json:"viewer_count" db:"viewer_count"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

func NewShow(hostID uuid.UUID, hostName, title string) *Show {
	return &Show{
		ID:        uuid.New(),
		HostID:    hostID,
		HostName:  hostName,
		Title:     title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// Live reports whether viewers can currently join.
func (s *Show) Live() bool {
	return s.Started && !s.Ended
}
