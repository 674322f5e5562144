package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/iemipdd12/reports_backend/config"
	"github.com/iemipdd12/reports_backend/utils"
)

type authString string

// AuthMiddleware requires a bearer token issued by tokens, rejects deny-listed tokens and
// re-validates the embedded provider token on every request.
func AuthMiddleware(tokens *utils.TokenIssuer, provider utils.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		const bearer = "Bearer "
		if len(auth) <= len(bearer) || !strings.EqualFold(auth[:len(bearer)], bearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		token := strings.TrimSpace(auth[len(bearer):])

		claims, err := tokens.JwtValidate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := c.Request.Context()
		revoked, err := utils.IsTokenRevoked(ctx, claims.Id)
		if err != nil {
			config.LogError(config.GetLogger(), "AuthMiddleware", "IsTokenRevoked", "deny-list lookup failed", claims.Id, err)
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": utils.ErrorTokenRevoked.Error()})
			return
		}

		info, err := provider.UserInfo(ctx, claims.ProviderToken)
		if err != nil {
			if errors.Is(err, utils.ErrorUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			config.LogError(config.GetLogger(), "AuthMiddleware", "UserInfo", "identity provider unavailable", claims.Username, err)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "identity provider unavailable"})
			return
		}

		ctx = context.WithValue(ctx, authString("auth"), claims)
		ctx = utils.SetTokenIdInContext(ctx, claims.Id)
		ctx = utils.SetUsernameInContext(ctx, info.Username)
		ctx = utils.SetEmailInContext(ctx, info.Email)
		ctx = utils.SetUserAttributesInContext(ctx, info.Attributes)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func CtxValue(ctx context.Context) *utils.JwtCustomClaim {
	raw, _ := ctx.Value(authString("auth")).(*utils.JwtCustomClaim)
	return raw
}
