package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/iemipdd12/reports_backend/config"
)

// UserInfo is what the identity provider reports about the caller.
type UserInfo struct {
	Username   string            `json:"username"`
	Email      string            `json:"email,omitempty"`
	Attributes map[string]string `json:"attributes"`
}

// IdentityProvider authenticates users and resolves provider access tokens.
type IdentityProvider interface {
	Authenticate(ctx context.Context, username, password string) (accessToken string, err error)
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)
}

// OAuthIdentityProvider talks to an OAuth2/OIDC provider using the resource owner password grant.
type OAuthIdentityProvider struct {
	conf        *oauth2.Config
	userInfoURL string
}

func NewOAuthIdentityProvider(s config.IdentitySettings) *OAuthIdentityProvider {
	return &OAuthIdentityProvider{
		conf: &oauth2.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			Scopes:       s.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  s.TokenURL,
				AuthStyle: oauth2.AuthStyleAutoDetect,
			},
		},
		userInfoURL: s.UserInfoURL,
	}
}

// Authenticate returns ErrorInvalidCredential when the provider rejects the credentials.
func (p *OAuthIdentityProvider) Authenticate(ctx context.Context, username, password string) (string, error) {
	tok, err := p.conf.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil &&
			(rerr.Response.StatusCode == http.StatusBadRequest || rerr.Response.StatusCode == http.StatusUnauthorized) {
			return "", ErrorInvalidCredential
		}
		return "", err
	}
	return tok.AccessToken, nil
}

// UserInfo returns ErrorUnauthorized when the provider no longer accepts accessToken.
func (p *OAuthIdentityProvider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	client := p.conf.Client(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrorUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return userInfoFromClaims(raw), nil
}

func userInfoFromClaims(raw map[string]any) *UserInfo {
	attrs := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			attrs[k] = val
		case nil:
		default:
			attrs[k] = fmt.Sprint(val)
		}
	}
	username := attrs["preferred_username"]
	if username == "" {
		username = attrs["username"]
	}
	if username == "" {
		username = attrs["sub"]
	}
	return &UserInfo{
		Username:   username,
		Email:      attrs["email"],
		Attributes: attrs,
	}
}
