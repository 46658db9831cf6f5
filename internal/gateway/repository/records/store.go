package records

import (
	"context"
	"errors"

	"hydrodiag/internal/gateway/entity"
)

var ErrNotFound = errors.New("record not found")

type UserStore interface {
	UpsertUser(ctx context.Context, u entity.User) error
	GetUser(ctx context.Context, id entity.UserID) (entity.User, error)
}

type PlantStore interface {
	SavePlantDiagnosis(ctx context.Context, d entity.PlantDiagnosis) error
	// ListPlantDiagnoses returns the user's diagnoses, most recent first.
	ListPlantDiagnoses(ctx context.Context, userID entity.UserID) ([]entity.PlantDiagnosis, error)
}

type SessionStore interface {
	CreateEquipmentSession(ctx context.Context, s entity.EquipmentSession) error
	UpdateEquipmentSession(ctx context.Context, s entity.EquipmentSession) error
	GetEquipmentSession(ctx context.Context, id string) (entity.EquipmentSession, error)
	// ListEquipmentSessions returns the user's sessions, most recently updated first.
	ListEquipmentSessions(ctx context.Context, userID entity.UserID) ([]entity.EquipmentSession, error)
}

// Store is the full relational store.
type Store interface {
	UserStore
	PlantStore
	SessionStore
}
