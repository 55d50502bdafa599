package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a sellable item attached to a show.
type Product struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ShowID    uuid.UUID `json:"show_id" db:"show_id"`
	Name      string    `json:"name" db:"name"`
	BasePrice int64     `json:"base_price" db:"base_price"`
	Pinned    bool      `json:"pinned" db:"pinned"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func NewProduct(showID uuid.UUID, name string, basePrice int64) *Product {
	return &Product{
		ID:        uuid.New(),
		ShowID:    showID,
		Name:      name,
		BasePrice: basePrice,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}
