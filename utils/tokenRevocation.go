package utils

import (
	"context"
	"time"

	"github.com/iemipdd12/reports_backend/config"
)

func revokedTokenKey(tokenId string) string {
	return "RevokedToken:" + tokenId
}

// RevokeToken deny-lists tokenId until the token would have expired anyway.
// Without Redis this is a no-op.
func RevokeToken(ctx context.Context, tokenId string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return config.SetRedisValue(ctx, revokedTokenKey(tokenId), "1", ttl)
}

func IsTokenRevoked(ctx context.Context, tokenId string) (bool, error) {
	_, found, err := config.GetRedisValue(ctx, revokedTokenKey(tokenId))
	if err != nil {
		return false, err
	}
	return found, nil
}
