package httpapi

import (
	"context"
	"net/http"
	"strings"

	"spa-system/internal/store"
)

type authContextKey struct{}

// AuthMiddleware resolves the caller's station session and enforces the role
// a station endpoint expects. Kiosk and monitor endpoints stay public so the
// self-service terminal and wall displays run without credentials.
func AuthMiddleware(st store.TransactionStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, err := st.GetSession(r.Context(), sessionID)
		if err != nil {
			if err == store.ErrSessionNotFound {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		if role := requiredRole(r); role != "" && session.Role != role {
			writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "station role does not allow this action")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (store.Session, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return store.Session{}, false
	}
	session, ok := value.(store.Session)
	return session, ok
}

// sessionAllowsStaff reports whether the resolved session, when one is
// present, belongs to the staff member named in the request body. A claim
// cannot be made on behalf of another station.
func sessionAllowsStaff(ctx context.Context, staffID string) bool {
	session, ok := sessionFromContext(ctx)
	if !ok {
		return true
	}
	return session.StaffID == staffID
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics", "/api/snapshot", "/api/events":
		return true
	case "/api/transactions":
		return r.Method == http.MethodPost
	case "/api/services", "/api/rooms":
		return r.Method == http.MethodGet
	default:
		if r.Method == http.MethodOptions {
			return true
		}
		// Kiosk follow-up view of a single transaction.
		if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/transactions/") &&
			!strings.Contains(strings.TrimPrefix(r.URL.Path, "/api/transactions/"), "/") {
			return true
		}
		return false
	}
}

// requiredRole maps station endpoints to the session role that may call
// them. An empty string means any authenticated session.
func requiredRole(r *http.Request) string {
	path := r.URL.Path
	switch path {
	case "/api/transactions/actions/claim-next":
		return store.RoleTherapist
	case "/api/transactions/actions/claim-payment":
		return store.RoleCashier
	}
	if strings.HasPrefix(path, "/api/rooms/") && strings.HasSuffix(path, "/status") {
		return store.RoleTherapist
	}
	if strings.HasPrefix(path, "/api/transactions/") {
		if strings.HasSuffix(path, "/actions/pay") {
			return store.RoleCashier
		}
		if strings.Contains(path, "/actions/") {
			return store.RoleTherapist
		}
	}
	return ""
}
