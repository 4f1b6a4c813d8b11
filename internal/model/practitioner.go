package model

import (
	"time"

	"github.com/google/uuid"
)

type Practitioner struct {
	Base
	TenantID  uuid.UUID `db:"tenant_id" json:"tenant_id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Specialty string    `db:"specialty" json:"specialty,omitempty"`
	// IANA zone used to interpret working hours; empty means UTC.
	Timezone string `db:"timezone" json:"timezone"`
}

// Location resolves the practitioner's time zone.
func (p *Practitioner) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(p.Timezone)
}
