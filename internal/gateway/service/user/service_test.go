package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrodiag/internal/gateway/entity"
	"hydrodiag/internal/gateway/repository/records"
)

type countingUsers struct {
	*records.MemoryStore
	upserts int
}

func (c *countingUsers) UpsertUser(ctx context.Context, u entity.User) error {
	c.upserts++
	return c.MemoryStore.UpsertUser(ctx, u)
}

func TestTouch_PromotesOwner(t *testing.T) {
	ctx := context.Background()
	store := records.NewMemoryStore()
	svc := New(store, "owner-1", time.Minute)

	owner := svc.Touch(ctx, entity.User{ID: "owner-1", Name: " Mio "})
	assert.Equal(t, entity.RoleAdmin, owner.Role)
	assert.Equal(t, "Mio", owner.Name)

	other := svc.Touch(ctx, entity.User{ID: "u2", Role: entity.RoleAdmin})
	assert.Equal(t, entity.RoleUser, other.Role)

	stored, err := store.GetUser(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, stored.Role)
	assert.False(t, stored.LastSignedIn.IsZero())
}

func TestTouch_ThrottlesWrites(t *testing.T) {
	ctx := context.Background()
	store := &countingUsers{MemoryStore: records.NewMemoryStore()}
	svc := New(store, "", time.Hour)

	for i := 0; i < 3; i++ {
		svc.Touch(ctx, entity.User{ID: "u1"})
	}
	svc.Touch(ctx, entity.User{ID: "u2"})
	assert.Equal(t, 2, store.upserts)
}

func TestTouch_AnonymousIsNotStored(t *testing.T) {
	store := &countingUsers{MemoryStore: records.NewMemoryStore()}
	svc := New(store, "", time.Minute)

	u := svc.Touch(context.Background(), entity.User{})
	assert.True(t, u.IsAnonymous())
	assert.Equal(t, 0, store.upserts)
}

func TestTouch_StoreUnavailable(t *testing.T) {
	svc := New(records.Unavailable{}, "owner", time.Minute)
	u := svc.Touch(context.Background(), entity.User{ID: "owner"})
	assert.Equal(t, entity.RoleAdmin, u.Role)
}
