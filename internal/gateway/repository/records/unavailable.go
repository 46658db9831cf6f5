package records

import (
	"context"
	"fmt"

	"hydrodiag/internal/diagnosis"
	"hydrodiag/internal/gateway/entity"
)

// Unavailable is the store used when no database is configured outside local
// runs. Every call fails with diagnosis.ErrStoreUnavailable so callers can
// degrade instead of failing the request.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	if u.Reason == "" {
		return diagnosis.ErrStoreUnavailable
	}
	return fmt.Errorf("%w: %s", diagnosis.ErrStoreUnavailable, u.Reason)
}

func (u Unavailable) UpsertUser(context.Context, entity.User) error { return u.err() }

func (u Unavailable) GetUser(context.Context, entity.UserID) (entity.User, error) {
	return entity.User{}, u.err()
}

func (u Unavailable) SavePlantDiagnosis(context.Context, entity.PlantDiagnosis) error {
	return u.err()
}

func (u Unavailable) ListPlantDiagnoses(context.Context, entity.UserID) ([]entity.PlantDiagnosis, error) {
	return nil, u.err()
}

func (u Unavailable) CreateEquipmentSession(context.Context, entity.EquipmentSession) error {
	return u.err()
}

func (u Unavailable) UpdateEquipmentSession(context.Context, entity.EquipmentSession) error {
	return u.err()
}

func (u Unavailable) GetEquipmentSession(context.Context, string) (entity.EquipmentSession, error) {
	return entity.EquipmentSession{}, u.err()
}

func (u Unavailable) ListEquipmentSessions(context.Context, entity.UserID) ([]entity.EquipmentSession, error) {
	return nil, u.err()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
	_ Store = Unavailable{}
)
