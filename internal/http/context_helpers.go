package httpx

import (
	"context"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
)

// sessionKey and clientIDKey are unexported context key types to avoid collisions across packages.
type (
	sessionKey  struct{}
	clientIDKey struct{}
)

// SetSessionInContext returns a child context that carries the given session.
// If session is nil, the original ctx is returned unchanged.
func SetSessionInContext(ctx context.Context, session *domainauth.Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// GetSessionFromContext retrieves the verified session placed by RequireArea, if any.
func GetSessionFromContext(ctx context.Context) *domainauth.Session {
	if s, ok := ctx.Value(sessionKey{}).(*domainauth.Session); ok {
		return s
	}
	return nil
}

// SetClientIDInContext returns a child context that carries the browser client id.
func SetClientIDInContext(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, clientID)
}

// ClientIDFromContext returns the client id issued by ClientIdentity, or "".
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}
