package github

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/cache"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication constants.
const (
	maxAppID            = 999999999
	jwtLifetime         = 10 * time.Minute // GitHub Apps JWTs expire after 10 minutes max
	jwtClockSkew        = 60 * time.Second
	tokenRotationMargin = 5 * time.Minute
	defaultHTTPTimeout  = 30 * time.Second
)

// AppConfig holds configuration for authenticating as a GitHub App.
type AppConfig struct {
	HTTPClient  HTTPDoer // optional; defaults to an *http.Client with HTTPTimeout
	AppID       string
	BaseURL     string
	PrivateKey  []byte // PEM encoded RSA key (PKCS1 or PKCS8)
	HTTPTimeout time.Duration
}

// App authenticates as a GitHub App and mints installation clients.
type App struct {
	now        func() time.Time
	httpClient HTTPDoer
	key        *rsa.PrivateKey
	tokens     *cache.Cache[string]
	appID      string
	baseURL    string
	retryDelay time.Duration
}

// NewApp validates the App credentials and returns an App ready to exchange tokens.
func NewApp(cfg AppConfig) (*App, error) {
	if err := validateAppID(cfg.AppID); err != nil {
		return nil, err
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &App{
		appID:      cfg.AppID,
		key:        key,
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tokens:     cache.New[string](time.Hour),
		now:        time.Now,
		retryDelay: initialRetryDelay,
	}, nil
}

// validateAppID validates the GitHub App ID.
func validateAppID(appID string) error {
	if appID == "" {
		return errors.New("app ID cannot be empty")
	}
	n, err := strconv.Atoi(appID)
	if err != nil || n <= 0 {
		return fmt.Errorf("app ID must be numeric: %q", appID)
	}
	if n > maxAppID {
		return errors.New("app ID too large")
	}
	return nil
}

// generateJWT generates a JWT token for GitHub App authentication.
func (a *App) generateJWT() (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"iat": now.Add(-jwtClockSkew).Unix(),
		"exp": now.Add(jwtLifetime).Unix(),
		"iss": a.appID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(a.key)
}

// ForInstallation returns a client authenticated as the given installation. Tokens are
// cached until shortly before GitHub expires them.
func (a *App) ForInstallation(ctx context.Context, installationID int64) (API, error) {
	token, err := a.installationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	c := NewClient(a.httpClient, a.baseURL, token)
	c.retryDelay = a.retryDelay
	return c, nil
}

// installationToken gets or refreshes an installation access token.
func (a *App) installationToken(ctx context.Context, installationID int64) (string, error) {
	if installationID <= 0 {
		return "", fmt.Errorf("invalid installation ID %d", installationID)
	}

	key := strconv.FormatInt(installationID, 10)
	if token, ok := a.tokens.Get(key); ok {
		return token, nil
	}

	jwtToken, err := a.generateJWT()
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT: %w", err)
	}

	// The JWT client never touches the token cache; it only exchanges the JWT.
	jwtClient := NewClient(a.httpClient, a.baseURL, jwtToken)
	jwtClient.retryDelay = a.retryDelay

	var tokenResp struct {
		ExpiresAt time.Time `json:"expires_at"`
		Token     string    `json:"token"`
	}
	path := fmt.Sprintf("/app/installations/%d/access_tokens", installationID)
	err = jwtClient.retryWithBackoff(ctx, "installation token", func() error {
		return jwtClient.sendJSON(ctx, http.MethodPost, path, nil, &tokenResp)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create installation token: %w", err)
	}
	if tokenResp.Token == "" {
		return "", errors.New("received empty installation token")
	}

	a.tokens.Prune()
	a.tokens.SetUntil(key, tokenResp.Token, tokenResp.ExpiresAt.Add(-tokenRotationMargin))

	slog.InfoContext(ctx, "Created installation access token", "component", "auth",
		"installation", installationID, "expires_at", tokenResp.ExpiresAt.Format(time.RFC3339))
	return tokenResp.Token, nil
}
