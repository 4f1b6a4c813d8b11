package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Page bounds list queries.
type Page struct {
	Limit  int `json:"limit" form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `json:"offset" form:"offset" binding:"omitempty,min=0"`
}

const DefaultPageLimit = 50

// Normalize applies the default limit.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}
