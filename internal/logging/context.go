package logging

import (
	"context"

	"go.uber.org/zap"
)

type userCtxKey struct{}
type turnCtxKey struct{}

// WithUserID attaches the acting user's id to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userCtxKey{}, userID)
}

// UserIDFromContext returns the user id, or "" when absent.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithTurnID attaches the conversation turn id to the context.
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnCtxKey{}, turnID)
}

// TurnIDFromContext returns the turn id, or "" when absent.
func TurnIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(turnCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if userID := UserIDFromContext(ctx); userID != "" {
		fields = append(fields, zap.String("user.id", userID))
	}
	if turnID := TurnIDFromContext(ctx); turnID != "" {
		fields = append(fields, zap.String("turn.id", turnID))
	}
	return fields
}
