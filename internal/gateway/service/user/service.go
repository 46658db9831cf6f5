package user

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"hydrodiag/internal/diagnosis"
	"hydrodiag/internal/gateway/entity"
	"hydrodiag/internal/gateway/repository/records"
)

const (
	defaultTouchInterval = 5 * time.Minute
	touchCacheSize       = 4096
)

// Service records signed-in users. The owner configured by OWNER_ID is
// promoted to admin.
type Service struct {
	store   records.UserStore
	ownerID entity.UserID
	now     func() time.Time
	touched *expirable.LRU[entity.UserID, struct{}]
}

func New(store records.UserStore, ownerID string, touchInterval time.Duration) *Service {
	if touchInterval <= 0 {
		touchInterval = defaultTouchInterval
	}
	return &Service{
		store:   store,
		ownerID: entity.NormalizeUserID(ownerID),
		now:     time.Now,
		touched: expirable.NewLRU[entity.UserID, struct{}](touchCacheSize, nil, touchInterval),
	}
}

// Touch resolves the role of u and upserts it with a fresh LastSignedIn.
// Repeated calls for the same user within the touch interval skip the write.
// Store failures are logged and never fail the caller.
func (s *Service) Touch(ctx context.Context, u entity.User) entity.User {
	if u.IsAnonymous() {
		return entity.AnonymousUser()
	}
	u.ID = entity.NormalizeUserID(u.ID.String())
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(u.Email)
	u.Role = entity.RoleUser
	if !s.ownerID.IsZero() && u.ID == s.ownerID {
		u.Role = entity.RoleAdmin
	}
	now := s.now().UTC()
	u.LastSignedIn = now

	if _, ok := s.touched.Get(u.ID); ok {
		return u
	}
	if err := s.store.UpsertUser(ctx, u); err != nil {
		if errors.Is(err, diagnosis.ErrStoreUnavailable) {
			log.Printf("user: warning: store unavailable, user not saved user=%s", u.ID)
		} else {
			log.Printf("user: upsert failed user=%s err=%v", u.ID, err)
		}
		return u
	}
	s.touched.Add(u.ID, struct{}{})
	return u
}
