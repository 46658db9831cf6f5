package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"hydrodiag/internal/gateway/auth"
	"hydrodiag/internal/gateway/entity"
)

// SessionCookie holds the sign-in token set by the upstream auth flow.
const SessionCookie = "session"

// UserToucher records a verified user and returns it with its resolved role.
type UserToucher interface {
	Touch(ctx context.Context, u entity.User) entity.User
}

// Identity attaches the caller to the request context. Requests without a
// valid token proceed as the anonymous user. The session cookie is only
// honoured for requests origins trusts; bearer tokens are always honoured.
func Identity(cfg auth.TokenConfig, users UserToucher, origins Origins) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := entity.AnonymousUser()
			if token := tokenFrom(r, origins); token != "" && cfg.Secret != "" {
				claims, err := auth.VerifyToken(token, cfg)
				if err != nil {
					log.Printf("identity: rejected token path=%s err=%v", r.URL.Path, err)
				} else {
					u = entity.User{
						ID:          entity.NormalizeUserID(claims.UserID),
						Name:        claims.Name,
						Email:       claims.Email,
						LoginMethod: claims.LoginMethod,
					}
					if users != nil {
						u = users.Touch(r.Context(), u)
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(entity.WithUser(r.Context(), u)))
		})
	}
}

func tokenFrom(r *http.Request, origins Origins) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		if !origins.Trusted(r) {
			log.Printf("identity: ignoring session cookie from untrusted origin=%s path=%s", r.Header.Get("Origin"), r.URL.Path)
			return ""
		}
		return strings.TrimSpace(c.Value)
	}
	return ""
}
