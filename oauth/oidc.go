// Package oauth provides ready-made implementations of the
// keywarden.OAuthProvider port for OIDC-style authorization-code
// providers.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keywarden/keywarden"
)

// Config describes one OIDC provider endpoint set.
type Config struct {
	// Name is the identifier the engine registers the provider under.
	Name string

	ClientID     string
	ClientSecret string
	RedirectURI  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// Scopes used when the caller passes none. Defaults to
	// "openid email profile".
	Scopes []string

	// HTTPClient overrides the client used for the token and userinfo
	// calls. Defaults to a 10-second-timeout client.
	HTTPClient *http.Client
}

// OIDCProvider implements keywarden.OAuthProvider for any provider that
// speaks the authorization-code flow with S256 PKCE. Identity claims are
// read from the id_token when the token endpoint returns one, with the
// userinfo endpoint as fallback.
//
// The id_token signature is deliberately not verified here: the token
// arrives over the provider's own TLS-protected token endpoint in direct
// response to our authenticated exchange, which is the same trust the
// userinfo call relies on.
type OIDCProvider struct {
	cfg    Config
	client *http.Client
}

var _ keywarden.OAuthProvider = (*OIDCProvider)(nil)

// NewOIDC validates cfg and builds the provider.
func NewOIDC(cfg Config) (*OIDCProvider, error) {
	if cfg.Name == "" {
		return nil, errors.New("oauth: provider name is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("oauth: client id is required")
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, errors.New("oauth: auth and token URLs are required")
	}

	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OIDCProvider{cfg: cfg, client: client}, nil
}

// Name implements keywarden.OAuthProvider.
func (p *OIDCProvider) Name() string { return p.cfg.Name }

// AuthorizationURL implements keywarden.OAuthProvider.
func (p *OIDCProvider) AuthorizationURL(state, codeChallenge string, scopes []string) string {
	if len(scopes) == 0 {
		scopes = p.cfg.Scopes
	}

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", p.cfg.ClientID)
	query.Set("redirect_uri", p.cfg.RedirectURI)
	query.Set("scope", strings.Join(scopes, " "))
	query.Set("state", state)
	if codeChallenge != "" {
		query.Set("code_challenge", codeChallenge)
		query.Set("code_challenge_method", "S256")
	}

	sep := "?"
	if strings.Contains(p.cfg.AuthURL, "?") {
		sep = "&"
	}
	return p.cfg.AuthURL + sep + query.Encode()
}

// Exchange implements keywarden.OAuthProvider.
func (p *OIDCProvider) Exchange(ctx context.Context, code, codeVerifier string) (keywarden.OAuthTokens, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURI)
	form.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecret != "" {
		form.Set("client_secret", p.cfg.ClientSecret)
	}
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return keywarden.OAuthTokens{}, fmt.Errorf("oauth: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return keywarden.OAuthTokens{}, fmt.Errorf("oauth: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return keywarden.OAuthTokens{}, fmt.Errorf("oauth: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return keywarden.OAuthTokens{}, fmt.Errorf("oauth: token endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return keywarden.OAuthTokens{}, fmt.Errorf("oauth: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return keywarden.OAuthTokens{}, errors.New("oauth: token response has no access token")
	}

	return keywarden.OAuthTokens{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		IDToken:      payload.IDToken,
		ExpiresIn:    payload.ExpiresIn,
	}, nil
}

// UserInfo implements keywarden.OAuthProvider.
func (p *OIDCProvider) UserInfo(ctx context.Context, tokens keywarden.OAuthTokens) (keywarden.OAuthUserInfo, error) {
	if tokens.IDToken != "" {
		info, err := claimsFromIDToken(tokens.IDToken)
		if err == nil {
			return info, nil
		}
		if p.cfg.UserInfoURL == "" {
			return keywarden.OAuthUserInfo{}, err
		}
	}
	if p.cfg.UserInfoURL == "" {
		return keywarden.OAuthUserInfo{}, errors.New("oauth: no id_token and no userinfo endpoint")
	}
	return p.fetchUserInfo(ctx, tokens.AccessToken)
}

func claimsFromIDToken(idToken string) (keywarden.OAuthUserInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return keywarden.OAuthUserInfo{}, fmt.Errorf("oauth: parse id_token: %w", err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return keywarden.OAuthUserInfo{}, errors.New("oauth: id_token has no subject")
	}

	info := keywarden.OAuthUserInfo{ID: sub}
	info.Email, _ = claims["email"].(string)
	info.Name, _ = claims["name"].(string)
	info.Picture, _ = claims["picture"].(string)
	switch verified := claims["email_verified"].(type) {
	case bool:
		info.EmailVerified = verified
	case string:
		// Some providers ship the claim as a string.
		info.EmailVerified = verified == "true"
	}
	return info, nil
}

func (p *OIDCProvider) fetchUserInfo(ctx context.Context, accessToken string) (keywarden.OAuthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return keywarden.OAuthUserInfo{}, fmt.Errorf("oauth: build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return keywarden.OAuthUserInfo{}, fmt.Errorf("oauth: userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return keywarden.OAuthUserInfo{}, fmt.Errorf("oauth: read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return keywarden.OAuthUserInfo{}, fmt.Errorf("oauth: userinfo endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Sub           string `json:"sub"`
		ID            string `json:"id"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return keywarden.OAuthUserInfo{}, fmt.Errorf("oauth: decode userinfo response: %w", err)
	}

	id := payload.Sub
	if id == "" {
		id = payload.ID
	}
	if id == "" {
		return keywarden.OAuthUserInfo{}, errors.New("oauth: userinfo response has no subject")
	}

	return keywarden.OAuthUserInfo{
		ID:            id,
		Email:         payload.Email,
		EmailVerified: payload.EmailVerified,
		Name:          payload.Name,
		Picture:       payload.Picture,
	}, nil
}
