package utils

import (
	"context"

	"github.com/iemipdd12/reports_backend/appctx"
)

type contextKey = appctx.ContextKey

var (
	ContextKeyTokenId        = appctx.ContextKeyTokenId
	ContextKeyUsername       = appctx.ContextKeyUsername
	ContextKeyEmail          = appctx.ContextKeyEmail
	ContextKeyCorrelationId  = appctx.ContextKeyCorrelationId
	ContextKeyUserAttributes = appctx.ContextKeyUserAttributes
)

func GetTokenIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTokenId)
}

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUsername)
}

func GetEmailFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyEmail)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetUserAttributesFromContext(ctx context.Context) (map[string]string, bool) {
	return appctx.GetStringMap(ctx, ContextKeyUserAttributes)
}

func SetTokenIdInContext(ctx context.Context, tokenId string) context.Context {
	return appctx.Set(ctx, ContextKeyTokenId, tokenId)
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.Set(ctx, ContextKeyUsername, username)
}

func SetEmailInContext(ctx context.Context, email string) context.Context {
	return appctx.Set(ctx, ContextKeyEmail, email)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetUserAttributesInContext(ctx context.Context, attributes map[string]string) context.Context {
	return appctx.Set(ctx, ContextKeyUserAttributes, attributes)
}
