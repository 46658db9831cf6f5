package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// Origins is the set of browser origins allowed to make credentialed calls.
type Origins struct {
	allowed map[string]struct{}
}

func NewOrigins(list []string) Origins {
	o := Origins{allowed: make(map[string]struct{}, len(list))}
	for _, raw := range list {
		if v := normalizeOrigin(raw); v != "" && v != "*" {
			o.allowed[v] = struct{}{}
		}
	}
	return o
}

// Allowed reports whether origin is listed.
func (o Origins) Allowed(origin string) bool {
	v := normalizeOrigin(origin)
	if v == "" {
		return false
	}
	_, ok := o.allowed[v]
	return ok
}

// Trusted reports whether r may carry cookie credentials: it has no Origin
// header, comes from the API's own host, or from a listed origin.
func (o Origins) Trusted(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if o.Allowed(origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host != "" && strings.EqualFold(u.Host, r.Host)
}

func normalizeOrigin(raw string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "/"))
}
