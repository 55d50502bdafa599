package dto

import "github.com/google/uuid"

type TokenRequest struct {
	ShowID   uuid.UUID `json:"show_id"`
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
}

type CreateShowRequest struct {
	HostID   uuid.UUID `json:"host_id"`
	HostName string    `json:"host_name"`
	Title    string    `json:"title"`
}

type PatchShowRequest struct {
	AudioMuted *bool `json:"audio_muted"`
}
