// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the authenticated actor, request id and request time; services
// read them without importing net/http.
//
//	actor := requestcontext.UserID(ctx)
//	now := requestcontext.Now(ctx)
package requestcontext

import (
	"context"
	"time"

	id "reyu/pkg/domain"
)

// Role is the authenticated caller's role claim.
type Role string

const (
	RoleTrader Role = "trader"
	RoleAdmin  Role = "admin"
)

type (
	userIDKey      struct{}
	roleKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyUserID      = userIDKey{}
	ContextKeyRole        = roleKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// UserID retrieves the authenticated user ID. Returns the nil ID if not set.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(ContextKeyUserID).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// ActorRole retrieves the caller's role, defaulting to trader.
func ActorRole(ctx context.Context) Role {
	if role, ok := ctx.Value(ContextKeyRole).(Role); ok && role != "" {
		return role
	}
	return RoleTrader
}

// WithRole injects the caller's role.
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, ContextKeyRole, role)
}

// WithActor injects both user ID and role, as the auth middleware does.
func WithActor(ctx context.Context, userID id.UserID, role Role) context.Context {
	return WithRole(WithUserID(ctx, userID), role)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time, falling back to time.Now() for
// workers and tests that never set one.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a fixed time. Workers use it to keep a sweep consistent.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
