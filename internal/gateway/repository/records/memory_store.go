package records

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"hydrodiag/internal/gateway/entity"
)

type MemoryStore struct {
	mu       sync.RWMutex
	users    map[entity.UserID]entity.User
	plants   map[string]entity.PlantDiagnosis
	sessions map[string]entity.EquipmentSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[entity.UserID]entity.User),
		plants:   make(map[string]entity.PlantDiagnosis),
		sessions: make(map[string]entity.EquipmentSession),
	}
}

func (s *MemoryStore) UpsertUser(_ context.Context, u entity.User) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if u.ID.IsZero() {
		return fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.users[u.ID]; ok && !prev.CreatedAt.IsZero() {
		u.CreatedAt = prev.CreatedAt
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id entity.UserID) (entity.User, error) {
	if s == nil {
		return entity.User{}, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return entity.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) SavePlantDiagnosis(_ context.Context, d entity.PlantDiagnosis) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("diagnosis id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plants[d.ID]; exists {
		return fmt.Errorf("plant diagnosis %s already exists", d.ID)
	}
	s.plants[d.ID] = clonePlant(d)
	return nil
}

func (s *MemoryStore) ListPlantDiagnoses(_ context.Context, userID entity.UserID) ([]entity.PlantDiagnosis, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.PlantDiagnosis, 0, 8)
	for _, d := range s.plants {
		if d.UserID == userID {
			out = append(out, clonePlant(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateEquipmentSession(_ context.Context, sess entity.EquipmentSession) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("equipment session %s already exists", sess.ID)
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *MemoryStore) UpdateEquipmentSession(_ context.Context, sess entity.EquipmentSession) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.sessions[sess.ID]
	if !ok {
		return ErrNotFound
	}
	sess.UserID = prev.UserID
	sess.CreatedAt = prev.CreatedAt
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *MemoryStore) GetEquipmentSession(_ context.Context, id string) (entity.EquipmentSession, error) {
	if s == nil {
		return entity.EquipmentSession{}, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[strings.TrimSpace(id)]
	if !ok {
		return entity.EquipmentSession{}, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) ListEquipmentSessions(_ context.Context, userID entity.UserID) ([]entity.EquipmentSession, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.EquipmentSession, 0, 8)
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func clonePlant(d entity.PlantDiagnosis) entity.PlantDiagnosis {
	out := d
	out.Temperature = cloneFloat(d.Temperature)
	out.Humidity = cloneFloat(d.Humidity)
	out.EC = cloneFloat(d.EC)
	out.Result.Remedies = entity.CloneSlice(d.Result.Remedies)
	out.Result.References = entity.CloneSlice(d.Result.References)
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
