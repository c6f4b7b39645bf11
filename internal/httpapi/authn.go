package httpapi

import (
	"net/http"
	"strings"

	"seguridad.dev/internal/session"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = map[string]bool{
	"/auth/register": true,
	"/auth/login":    true,
	"/healthz":       true,
	"/readyz":        true,
	"/metrics":       true,
}

// withAuth verifies the bearer JWT, resolves the caller's roles and attaches
// the identity to the request context. Public paths pass through untouched.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := a.sessions.Verify(token)
		if err != nil {
			handleError(w, r, err)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			handleError(w, r, err)
			return
		}

		roles, err := a.users.ListRoleNames(r.Context(), userID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		ctx := session.ContextWithIdentity(r.Context(), session.Identity{
			UserID:   userID,
			Username: claims.Username,
			Roles:    roles,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole aborts the request unless the caller carries the role. Returns
// the identity for handlers that need the caller.
func (a *API) requireRole(w http.ResponseWriter, r *http.Request, role string) (session.Identity, bool) {
	id, ok := session.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return session.Identity{}, false
	}
	if !id.HasRole(role) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return session.Identity{}, false
	}
	return id, true
}

func identity(r *http.Request) (session.Identity, bool) {
	return session.IdentityFromContext(r.Context())
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}
