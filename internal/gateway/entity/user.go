package entity

import (
	"context"
	"strings"
	"time"
)

// AnonymousUserID owns records created by callers without a verified identity.
const AnonymousUserID UserID = "anonymous"

// UserID identifies the owner of diagnoses and sessions.
type UserID string

func NormalizeUserID(raw string) UserID {
	return UserID(strings.TrimSpace(raw))
}

func (id UserID) String() string {
	return strings.TrimSpace(string(id))
}

func (id UserID) IsZero() bool {
	return id.String() == ""
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the authenticated caller, or the anonymous placeholder.
type User struct {
	ID           UserID    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	LoginMethod  string    `json:"loginMethod,omitempty"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	LastSignedIn time.Time `json:"lastSignedIn"`
}

func AnonymousUser() User {
	return User{ID: AnonymousUserID, Role: RoleUser}
}

func (u User) IsAnonymous() bool {
	return u.ID.IsZero() || u.ID == AnonymousUserID
}

// OwnerID returns the id records should be stored under.
func (u User) OwnerID() UserID {
	if u.IsAnonymous() {
		return AnonymousUserID
	}
	return u.ID
}

type userKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the caller attached to ctx, falling back to the anonymous user.
func UserFrom(ctx context.Context) User {
	if ctx == nil {
		return AnonymousUser()
	}
	if u, ok := ctx.Value(userKey{}).(User); ok {
		return u
	}
	return AnonymousUser()
}
