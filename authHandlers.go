package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iemipdd12/reports_backend/config"
	"github.com/iemipdd12/reports_backend/middlewares"
	"github.com/iemipdd12/reports_backend/utils"
	"github.com/sirupsen/logrus"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int64           `json:"expires_in"`
	UserInfo    *utils.UserInfo `json:"user_info"`
}

func (s *server) loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if !bindJSON(c, &req) {
			return
		}
		ctx := c.Request.Context()

		providerToken, err := s.identity.Authenticate(ctx, req.Username, req.Password)
		if err != nil {
			if errors.Is(err, utils.ErrorInvalidCredential) {
				respondError(c, err)
				return
			}
			config.LogError(config.GetLogger(), "authHandlers.go", "loginHandler", "Authenticate", req.Username, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider unavailable"})
			return
		}
		info, err := s.identity.UserInfo(ctx, providerToken)
		if err != nil {
			config.LogError(config.GetLogger(), "authHandlers.go", "loginHandler", "UserInfo", req.Username, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider unavailable"})
			return
		}

		token, err := s.tokens.JwtGenerate(info.Username, info.Email, providerToken)
		if err != nil {
			respondError(c, err)
			return
		}
		config.GetLogger().WithFields(logrus.Fields{"username": info.Username}).Info("[auth.login]")
		c.JSON(http.StatusOK, loginResponse{
			AccessToken: token,
			TokenType:   "bearer",
			ExpiresIn:   int64(s.tokens.Lifetime().Seconds()),
			UserInfo:    info,
		})
	}
}

func (s *server) logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		claims := middlewares.CtxValue(ctx)
		tokenId, ok := utils.GetTokenIdFromContext(ctx)
		if claims == nil || !ok {
			respondError(c, utils.ErrorUnauthorized)
			return
		}
		if err := utils.RevokeToken(ctx, tokenId, time.Unix(claims.ExpiresAt, 0)); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

func (s *server) meHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		username, ok := utils.GetUsernameFromContext(ctx)
		if !ok || username == "" {
			respondError(c, utils.ErrorUnauthorized)
			return
		}
		email, _ := utils.GetEmailFromContext(ctx)
		attributes, _ := utils.GetUserAttributesFromContext(ctx)
		c.JSON(http.StatusOK, utils.UserInfo{
			Username:   username,
			Email:      email,
			Attributes: attributes,
		})
	}
}
