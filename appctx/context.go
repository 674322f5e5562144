package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> utils).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyTokenId       = ContextKey("TokenId")
	ContextKeyUsername      = ContextKey("Username")
	ContextKeyEmail         = ContextKey("Email")
	ContextKeyCorrelationId = ContextKey("CorrelationId")

	// ContextKeyUserAttributes holds the identity provider attributes of the caller (map[string]string).
	ContextKeyUserAttributes = ContextKey("UserAttributes")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetStringMap(ctx context.Context, key ContextKey) (map[string]string, bool) {
	v, ok := ctx.Value(key).(map[string]string)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
