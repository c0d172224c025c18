package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return key, pemBytes
}

func TestValidateAppID_Valid(t *testing.T) {
	tests := []struct {
		name  string
		appID string
	}{
		{"single digit", "1"},
		{"multiple digits", "123456"},
		{"max valid", "999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateAppID(tt.appID); err != nil {
				t.Errorf("validateAppID(%q) unexpected error: %v", tt.appID, err)
			}
		})
	}
}

func TestValidateAppID_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		appID   string
		wantErr string
	}{
		{"empty", "", "app ID cannot be empty"},
		{"non-numeric", "abc", "app ID must be numeric"},
		{"negative", "-1", "app ID must be numeric"},
		{"zero", "0", "app ID must be numeric"},
		{"too large", "9999999999", "app ID too large"},
		{"with spaces", "123 456", "app ID must be numeric"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAppID(tt.appID)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validateAppID(%q) error = %v, want %q", tt.appID, err, tt.wantErr)
			}
		})
	}
}

func TestNewApp_InvalidKey(t *testing.T) {
	_, err := NewApp(AppConfig{AppID: "123", PrivateKey: []byte("not a key")})
	if err == nil || !strings.Contains(err.Error(), "failed to parse private key") {
		t.Errorf("NewApp() error = %v, want parse failure", err)
	}
}

func TestGenerateJWT(t *testing.T) {
	key, pemBytes := testKey(t)
	app, err := NewApp(AppConfig{AppID: "4242", PrivateKey: pemBytes})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	app.now = func() time.Time { return now }

	signed, err := app.generateJWT()
	if err != nil {
		t.Fatalf("generateJWT() error = %v", err)
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return now }), jwt.WithValidMethods([]string{"RS256"}))
	if _, err := parser.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) { return &key.PublicKey, nil }); err != nil {
		t.Fatalf("ParseWithClaims() error = %v", err)
	}
	if claims["iss"] != "4242" {
		t.Errorf("iss = %v, want 4242", claims["iss"])
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || !exp.Time.Equal(now.Add(jwtLifetime)) {
		t.Errorf("exp = %v, want %v", exp, now.Add(jwtLifetime))
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || !iat.Time.Equal(now.Add(-jwtClockSkew)) {
		t.Errorf("iat = %v, want %v", iat, now.Add(-jwtClockSkew))
	}
}

// tokenServer issues installation tokens that expire an hour after issuance.
func tokenServer(t *testing.T, issued *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/app/installations/555/access_tokens" {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ey") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := issued.Add(1)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test server
			"token":      fmt.Sprintf("ghs_token_%d", n),
			"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestForInstallation_CachesToken(t *testing.T) {
	ctx := context.Background()
	_, pemBytes := testKey(t)
	var issued atomic.Int32
	server := tokenServer(t, &issued)

	app, err := NewApp(AppConfig{AppID: "4242", PrivateKey: pemBytes, BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	first, err := app.ForInstallation(ctx, 555)
	if err != nil {
		t.Fatalf("ForInstallation() error = %v", err)
	}
	second, err := app.ForInstallation(ctx, 555)
	if err != nil {
		t.Fatalf("ForInstallation() error = %v", err)
	}
	if first.Token() != "ghs_token_1" || second.Token() != "ghs_token_1" {
		t.Errorf("tokens = %q, %q; want both ghs_token_1", first.Token(), second.Token())
	}
	if issued.Load() != 1 {
		t.Errorf("tokens issued = %d, want 1", issued.Load())
	}
}

func TestForInstallation_RefreshesNearExpiry(t *testing.T) {
	ctx := context.Background()
	_, pemBytes := testKey(t)
	var issued atomic.Int32
	server := tokenServer(t, &issued)

	app, err := NewApp(AppConfig{AppID: "4242", PrivateKey: pemBytes, BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	if _, err := app.ForInstallation(ctx, 555); err != nil {
		t.Fatalf("ForInstallation() error = %v", err)
	}

	// The cache treats the token as stale once it is within the rotation margin.
	app.tokens.SetUntil("555", "ghs_token_1", time.Now().Add(-time.Second))

	api, err := app.ForInstallation(ctx, 555)
	if err != nil {
		t.Fatalf("ForInstallation() error = %v", err)
	}
	if api.Token() != "ghs_token_2" {
		t.Errorf("token = %q, want ghs_token_2", api.Token())
	}
}

func TestForInstallation_Errors(t *testing.T) {
	ctx := context.Background()
	_, pemBytes := testKey(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Integration not found"}`)) //nolint:errcheck // test server
	}))
	defer server.Close()

	app, err := NewApp(AppConfig{AppID: "4242", PrivateKey: pemBytes, BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	if _, err := app.ForInstallation(ctx, 0); err == nil {
		t.Error("expected error for installation 0")
	}
	_, err = app.ForInstallation(ctx, 555)
	if !IsNotFound(err) {
		t.Errorf("ForInstallation() error = %v, want not found", err)
	}
}
