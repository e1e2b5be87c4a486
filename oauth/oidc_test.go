package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keywarden/keywarden"
)

func testConfig(tokenURL, userInfoURL string) Config {
	return Config{
		Name:         "acme",
		ClientID:     "client-1",
		ClientSecret: "hunter2",
		RedirectURI:  "https://app.example.com/callback",
		AuthURL:      "https://acme.example.com/authorize",
		TokenURL:     tokenURL,
		UserInfoURL:  userInfoURL,
	}
}

func signIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("sign id_token: %v", err)
	}
	return signed
}

func TestNewOIDCValidation(t *testing.T) {
	if _, err := NewOIDC(Config{}); err == nil {
		t.Fatal("empty config accepted")
	}
	if _, err := NewOIDC(Config{Name: "acme", ClientID: "c"}); err == nil {
		t.Fatal("missing endpoints accepted")
	}
	p, err := NewOIDC(testConfig("https://acme.example.com/token", ""))
	if err != nil {
		t.Fatalf("NewOIDC: %v", err)
	}
	if got := p.Name(); got != "acme" {
		t.Fatalf("Name() = %q, want acme", got)
	}
}

func TestAuthorizationURL(t *testing.T) {
	p, err := NewOIDC(testConfig("https://acme.example.com/token", ""))
	if err != nil {
		t.Fatalf("NewOIDC: %v", err)
	}

	raw := p.AuthorizationURL("state-123", "challenge-abc", nil)
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse authorization URL: %v", err)
	}
	q := parsed.Query()

	if got := q.Get("response_type"); got != "code" {
		t.Errorf("response_type = %q", got)
	}
	if got := q.Get("client_id"); got != "client-1" {
		t.Errorf("client_id = %q", got)
	}
	if got := q.Get("state"); got != "state-123" {
		t.Errorf("state = %q", got)
	}
	if got := q.Get("code_challenge"); got != "challenge-abc" {
		t.Errorf("code_challenge = %q", got)
	}
	if got := q.Get("code_challenge_method"); got != "S256" {
		t.Errorf("code_challenge_method = %q", got)
	}
	if got := q.Get("scope"); got != "openid email profile" {
		t.Errorf("default scope = %q", got)
	}

	raw = p.AuthorizationURL("s", "c", []string{"openid", "groups"})
	if !strings.Contains(raw, "scope=openid+groups") {
		t.Errorf("custom scopes not applied: %s", raw)
	}
}

func TestAuthorizationURLAppendsToExistingQuery(t *testing.T) {
	cfg := testConfig("https://acme.example.com/token", "")
	cfg.AuthURL = "https://acme.example.com/authorize?tenant=main"
	p, err := NewOIDC(cfg)
	if err != nil {
		t.Fatalf("NewOIDC: %v", err)
	}

	parsed, err := url.Parse(p.AuthorizationURL("s", "c", nil))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := parsed.Query()
	if q.Get("tenant") != "main" || q.Get("state") != "s" {
		t.Fatalf("existing query lost: %v", q)
	}
}

func TestExchangeSendsCodeAndVerifier(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"id_token":      "idt-1",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	p, err := NewOIDC(testConfig(srv.URL, ""))
	if err != nil {
		t.Fatalf("NewOIDC: %v", err)
	}

	tokens, err := p.Exchange(context.Background(), "code-9", "verifier-9")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tokens.AccessToken != "at-1" || tokens.RefreshToken != "rt-1" || tokens.IDToken != "idt-1" || tokens.ExpiresIn != 3600 {
		t.Fatalf("tokens = %+v", tokens)
	}

	if gotForm.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q", gotForm.Get("grant_type"))
	}
	if gotForm.Get("code") != "code-9" {
		t.Errorf("code = %q", gotForm.Get("code"))
	}
	if gotForm.Get("code_verifier") != "verifier-9" {
		t.Errorf("code_verifier = %q", gotForm.Get("code_verifier"))
	}
	if gotForm.Get("client_secret") != "hunter2" {
		t.Errorf("client_secret = %q", gotForm.Get("client_secret"))
	}
	if gotForm.Get("redirect_uri") != "https://app.example.com/callback" {
		t.Errorf("redirect_uri = %q", gotForm.Get("redirect_uri"))
	}
}

func TestExchangeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p, err := NewOIDC(testConfig(srv.URL, ""))
	if err != nil {
		t.Fatalf("NewOIDC: %v", err)
	}
	if _, err := p.Exchange(context.Background(), "bad-code", "v"); err == nil {
		t.Fatal("expected error for non-200 token response")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer empty.Close()

	p2, err := NewOIDC(testConfig(empty.URL, ""))
	if err != nil {
		t.Fatalf("NewOIDC: %v", err)
	}
	if _, err := p2.Exchange(context.Background(), "code", "v"); err == nil {
		t.Fatal("expected error for response without access token")
	}
}

func TestUserInfoFromIDToken(t *testing.T) {
	p, err := NewOIDC(testConfig("https://acme.example.com/token", ""))
	if err != nil {
		t.Fatalf("NewOIDC: %v", err)
	}

	idToken := signIDToken(t, jwt.MapClaims{
		"sub":            "acme-user-7",
		"email":          "carol@example.com",
		"email_verified": true,
		"name":           "Carol",
		"picture":        "https://img.example.com/carol.png",
	})

	info, err := p.UserInfo(context.Background(), keywarden.OAuthTokens{AccessToken: "at", IDToken: idToken})
	if err != nil {
		t.Fatalf("UserInfo: %v", err)
	}
	want := keywarden.OAuthUserInfo{
		ID:            "acme-user-7",
		Email:         "carol@example.com",
		EmailVerified: true,
		Name:          "Carol",
		Picture:       "https://img.example.com/carol.png",
	}
	if info != want {
		t.Fatalf("info = %+v, want %+v", info, want)
	}
}

func TestUserInfoStringVerifiedClaim(t *testing.T) {
	p, err := NewOIDC(testConfig("https://acme.example.com/token", ""))
	if err != nil {
		t.Fatalf("NewOIDC: %v", err)
	}

	idToken := signIDToken(t, jwt.MapClaims{
		"sub":            "u1",
		"email":          "d@example.com",
		"email_verified": "true",
	})
	info, err := p.UserInfo(context.Background(), keywarden.OAuthTokens{IDToken: idToken})
	if err != nil {
		t.Fatalf("UserInfo: %v", err)
	}
	if !info.EmailVerified {
		t.Fatal("string email_verified claim not recognized")
	}
}

func TestUserInfoFallsBackToEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at-5" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"sub":            "fallback-user",
			"email":          "erin@example.com",
			"email_verified": true,
		})
	}))
	defer srv.Close()

	p, err := NewOIDC(testConfig("https://acme.example.com/token", srv.URL))
	if err != nil {
		t.Fatalf("NewOIDC: %v", err)
	}

	// No id_token at all.
	info, err := p.UserInfo(context.Background(), keywarden.OAuthTokens{AccessToken: "at-5"})
	if err != nil {
		t.Fatalf("UserInfo: %v", err)
	}
	if info.ID != "fallback-user" || info.Email != "erin@example.com" || !info.EmailVerified {
		t.Fatalf("info = %+v", info)
	}

	// Malformed id_token also falls through to the endpoint.
	info, err = p.UserInfo(context.Background(), keywarden.OAuthTokens{AccessToken: "at-5", IDToken: "not.a.jwt"})
	if err != nil {
		t.Fatalf("UserInfo with bad id_token: %v", err)
	}
	if info.ID != "fallback-user" {
		t.Fatalf("info = %+v", info)
	}
}

func TestUserInfoNoSourcesFails(t *testing.T) {
	p, err := NewOIDC(testConfig("https://acme.example.com/token", ""))
	if err != nil {
		t.Fatalf("NewOIDC: %v", err)
	}
	if _, err := p.UserInfo(context.Background(), keywarden.OAuthTokens{AccessToken: "at"}); err == nil {
		t.Fatal("expected error with no id_token and no userinfo endpoint")
	}

	idToken := signIDToken(t, jwt.MapClaims{"email": "nosub@example.com"})
	if _, err := p.UserInfo(context.Background(), keywarden.OAuthTokens{IDToken: idToken}); err == nil {
		t.Fatal("expected error for id_token without subject")
	}
}
