package server

import (
	"context"
	"net/http"

	"tailscale.com/client/tailscale/apitype"
)

type contextKey int

const (
	userIDKey contextKey = iota
	userInfoKey
)

// UserInfo is the identity of the caller as shown by /api/v1/me.
type UserInfo struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

var devUser = UserInfo{Login: "local", DisplayName: "Local Dev User"}

// WhoIs resolves a tailnet peer address. tsnet's local client implements it.
type WhoIs interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// UserDirectory maps tailnet logins to user IDs and gates access.
type UserDirectory interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
	IsUserAllowed(ctx context.Context, login string) (bool, error)
}

// DevIdentity assigns every request to user 1. Used without Tailscale.
func DevIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), userIDKey, 1)
		ctx = context.WithValue(ctx, userInfoKey, devUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TailscaleIdentity identifies the caller by its tailnet login. Unknown peers
// get 401, logins missing from a non-empty allowlist get 403.
func TailscaleIdentity(lc WhoIs, users UserDirectory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who, err := lc.WhoIs(r.Context(), r.RemoteAddr)
			if err != nil || who.UserProfile == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown tailnet peer"})
				return
			}
			login := who.UserProfile.LoginName

			allowed, err := users.IsUserAllowed(r.Context(), login)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			if !allowed {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "user not allowed"})
				return
			}

			id, err := users.GetOrCreateUser(r.Context(), login, who.UserProfile.DisplayName)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, id)
			ctx = context.WithValue(ctx, userInfoKey, UserInfo{Login: login, DisplayName: who.UserProfile.DisplayName})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userIDFromContext returns the user set by the identity middleware, 1 if none.
func userIDFromContext(r *http.Request) int {
	if id, ok := r.Context().Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// RequestUserID exposes the caller's user ID to handlers mounted from outside
// the package, such as the MCP endpoint.
func RequestUserID(r *http.Request) int {
	return userIDFromContext(r)
}

func userInfoFromContext(r *http.Request) UserInfo {
	if info, ok := r.Context().Value(userInfoKey).(UserInfo); ok {
		return info
	}
	return devUser
}

// mustUserID returns the caller's user ID or writes 401.
func mustUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := r.Context().Value(userIDKey).(int)
	if !ok || id <= 0 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no user identity"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}
