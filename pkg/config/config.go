// Package config loads and validates the relay's configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/relay"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults for optional settings.
const (
	DefaultBranchPrefix  = "claude/issue-"
	DefaultDispatchEvent = "claude_copilot"
	DefaultTitlePrefix   = "[WIP] "
	DefaultPort          = 8080
	DefaultGitHubAPIURL  = "https://api.github.com"
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultDeliveryTTL   = time.Hour

	minWebhookSecretLength = 8
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var numericAppID = regexp.MustCompile(`^\d+$`)

// Config is the complete process configuration. It is built once at startup and passed
// to the components that need it.
type Config struct {
	AppID          string        `koanf:"app_id"`
	PrivateKey     string        `koanf:"private_key"`
	PrivateKeyPath string        `koanf:"private_key_path"`
	WebhookSecret  string        `koanf:"webhook_secret"`
	TargetLabel    string        `koanf:"target_label"`
	DefaultBranch  string        `koanf:"default_branch"`
	BranchPrefix   string        `koanf:"branch_prefix"`
	DispatchEvent  string        `koanf:"repository_dispatch_event"`
	TitlePrefix    string        `koanf:"pull_request_prefix"`
	Environment    string        `koanf:"environment"`
	NodeEnv        string        `koanf:"node_env"`
	LogLevel       string        `koanf:"log_level"`
	RedisURL       string        `koanf:"redis_url"`
	GitHubAPIURL   string        `koanf:"github_api_url"`
	Port           int           `koanf:"port"`
	HTTPTimeout    time.Duration `koanf:"http_timeout"`
	DeliveryTTL    time.Duration `koanf:"delivery_ttl"`
}

// envKeys are the environment variables the relay reads. Anything else in the
// environment is ignored.
var envKeys = map[string]bool{
	"APP_ID": true, "PRIVATE_KEY": true, "PRIVATE_KEY_PATH": true, "WEBHOOK_SECRET": true,
	"TARGET_LABEL": true, "DEFAULT_BRANCH": true, "BRANCH_PREFIX": true,
	"REPOSITORY_DISPATCH_EVENT": true, "PULL_REQUEST_PREFIX": true, "PORT": true,
	"ENVIRONMENT": true, "NODE_ENV": true, "LOG_LEVEL": true, "REDIS_URL": true,
	"GITHUB_API_URL": true, "HTTP_TIMEOUT": true, "DELIVERY_TTL": true,
}

// Load reads defaults, then the optional TOML file at path, then the environment.
// Later sources win. The result is validated.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"branch_prefix":             DefaultBranchPrefix,
		"repository_dispatch_event": DefaultDispatchEvent,
		"pull_request_prefix":       DefaultTitlePrefix,
		"port":                      DefaultPort,
		"github_api_url":            DefaultGitHubAPIURL,
		"http_timeout":              DefaultHTTPTimeout.String(),
		"delivery_ttl":              DefaultDeliveryTTL.String(),
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		if !envKeys[s] {
			return ""
		}
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize applies defaults to settings given as empty strings and resolves the private key.
func (c *Config) normalize() error {
	if c.BranchPrefix == "" {
		c.BranchPrefix = DefaultBranchPrefix
	}
	if c.DispatchEvent == "" {
		c.DispatchEvent = DefaultDispatchEvent
	}
	if c.TitlePrefix == "" {
		c.TitlePrefix = DefaultTitlePrefix
	}
	if c.GitHubAPIURL == "" {
		c.GitHubAPIURL = DefaultGitHubAPIURL
	}
	if c.Environment == "" {
		c.Environment = c.NodeEnv
	}
	if c.Environment == "" {
		c.Environment = "development"
	}

	if c.PrivateKey == "" && c.PrivateKeyPath != "" {
		data, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("reading private key: %w", err)
		}
		c.PrivateKey = string(data)
	}
	// Keys passed through a single-line environment variable carry literal "\n".
	c.PrivateKey = strings.ReplaceAll(c.PrivateKey, `\n`, "\n")
	return nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		name  string
		value string
	}{
		{"APP_ID", c.AppID},
		{"PRIVATE_KEY", c.PrivateKey},
		{"WEBHOOK_SECRET", c.WebhookSecret},
		{"TARGET_LABEL", c.TargetLabel},
		{"DEFAULT_BRANCH", c.DefaultBranch},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("required setting %s is not set", r.name))
		}
	}

	if c.AppID != "" && !numericAppID.MatchString(c.AppID) {
		errs = append(errs, errors.New("APP_ID must be a valid number"))
	}
	if c.PrivateKey != "" && (!strings.Contains(c.PrivateKey, "BEGIN") || !strings.Contains(c.PrivateKey, "END")) {
		errs = append(errs, errors.New("PRIVATE_KEY must be a valid PEM format private key"))
	}
	if c.WebhookSecret != "" && len(c.WebhookSecret) < minWebhookSecretLength {
		errs = append(errs, fmt.Errorf("WEBHOOK_SECRET must be at least %d characters long", minWebhookSecretLength))
	}
	if strings.Contains(c.BranchPrefix, " ") || strings.Contains(c.BranchPrefix, "..") {
		errs = append(errs, errors.New("BRANCH_PREFIX must be a valid git branch prefix"))
	}
	if strings.TrimSpace(c.TitlePrefix) == "" {
		errs = append(errs, errors.New("PULL_REQUEST_PREFIX cannot be empty"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}
	if c.DeliveryTTL <= 0 {
		errs = append(errs, errors.New("DELIVERY_TTL must be positive"))
	}
	if c.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Level returns the configured log level: LOG_LEVEL if set, otherwise info in production
// and debug elsewhere.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if c.LogLevel != "" && level.UnmarshalText([]byte(c.LogLevel)) == nil {
		return level
	}
	if c.IsProduction() {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// Relay returns the relay's policy settings.
func (c *Config) Relay() relay.Config {
	return relay.Config{
		TargetLabel:   c.TargetLabel,
		DefaultBranch: c.DefaultBranch,
		BranchPrefix:  c.BranchPrefix,
		DispatchEvent: c.DispatchEvent,
		TitlePrefix:   c.TitlePrefix,
	}
}

// Summary describes the configuration without secrets, for the startup log.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"app_id":                    c.AppID,
		"target_label":              c.TargetLabel,
		"default_branch":            c.DefaultBranch,
		"branch_prefix":             c.BranchPrefix,
		"repository_dispatch_event": c.DispatchEvent,
		"pull_request_prefix":       c.TitlePrefix,
		"reaction":                  relay.Reaction,
		"environment":               c.Environment,
		"log_level":                 c.Level().String(),
		"port":                      c.Port,
		"github_api_url":            c.GitHubAPIURL,
		"http_timeout":              c.HTTPTimeout.String(),
		"redis":                     c.RedisURL != "",
		"delivery_ttl":              c.DeliveryTTL.String(),
	}
}
