// Package tenant guards against cross-tenant references before any mutation.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

const (
	DefaultOwnerTTL = 10 * time.Minute

	kindPatient      = "patient"
	kindPractitioner = "practitioner"
)

// OwnerResolver returns the tenant owning an entity, or apperrors.ErrNotFound.
type OwnerResolver interface {
	OwnerTenant(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

type Guard struct {
	patients      OwnerResolver
	practitioners OwnerResolver
	owners        *cache.Cache
}

// NewGuard builds a guard. owners may be nil to disable caching; entity
// ownership never changes so cached hits need no invalidation.
func NewGuard(patients, practitioners OwnerResolver, owners *cache.Cache) *Guard {
	return &Guard{
		patients:      patients,
		practitioners: practitioners,
		owners:        owners,
	}
}

// Check fails with TENANT_MISMATCH when the patient, or the practitioner if
// given, is missing or owned by a tenant other than tenantID.
func (g *Guard) Check(ctx context.Context, tenantID, patientID uuid.UUID, practitionerID *uuid.UUID) error {
	if err := g.verify(ctx, kindPatient, g.patients, tenantID, patientID); err != nil {
		return err
	}
	if practitionerID != nil {
		if err := g.verify(ctx, kindPractitioner, g.practitioners, tenantID, *practitionerID); err != nil {
			return err
		}
	}
	return nil
}

// CheckPractitioner verifies a single practitioner reference.
func (g *Guard) CheckPractitioner(ctx context.Context, tenantID, practitionerID uuid.UUID) error {
	return g.verify(ctx, kindPractitioner, g.practitioners, tenantID, practitionerID)
}

func (g *Guard) verify(ctx context.Context, kind string, resolver OwnerResolver, tenantID, id uuid.UUID) error {
	if tenantID == uuid.Nil || id == uuid.Nil {
		return apperrors.ErrTenantMismatch.WithMessage("%s reference is missing", kind)
	}

	owner, err := g.owner(ctx, kind, resolver, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrTenantMismatch.WithMessage("%s %s not found in tenant", kind, id)
		}
		return fmt.Errorf("failed to resolve %s owner: %w", kind, err)
	}
	if owner != tenantID {
		return apperrors.ErrTenantMismatch.WithMessage("%s %s not found in tenant", kind, id)
	}
	return nil
}

func (g *Guard) owner(ctx context.Context, kind string, resolver OwnerResolver, id uuid.UUID) (uuid.UUID, error) {
	key := kind + ":" + id.String()
	if g.owners != nil {
		if v, ok := g.owners.Get(key); ok {
			return v.(uuid.UUID), nil
		}
	}

	owner, err := resolver.OwnerTenant(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if g.owners != nil {
		g.owners.SetDefault(key, owner)
	}
	return owner, nil
}
