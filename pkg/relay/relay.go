// Package relay turns GitHub webhook events into repository_dispatch work requests for a
// downstream coding agent, and reconciles pull request state when the agent's run finishes.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/github"
)

// Reaction is the content of the acknowledgment reaction left on every admitted item.
const Reaction = "eyes"

// ErrBaseBranchMissing is returned when the configured default branch does not exist in the
// repository an issue was labeled in.
var ErrBaseBranchMissing = errors.New("default branch not found")

const (
	maxBranchNameLength = 32
	maxBranchAttempts   = 5
	branchLockTTL       = 30 * time.Second
)

// Config holds the relay's policy settings.
type Config struct {
	TargetLabel   string // label that marks an issue or PR as managed
	DefaultBranch string // base for new branches and pull requests
	BranchPrefix  string
	DispatchEvent string // repository_dispatch event_type sent downstream
	TitlePrefix   string // draft pull request title prefix, removed on reconcile
}

// Validate reports configuration the relay cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.TargetLabel == "" {
		errs = append(errs, errors.New("target label is required"))
	}
	if c.DefaultBranch == "" {
		errs = append(errs, errors.New("default branch is required"))
	}
	if c.DispatchEvent == "" {
		errs = append(errs, errors.New("dispatch event is required"))
	}
	if strings.TrimSpace(c.TitlePrefix) == "" {
		errs = append(errs, errors.New("pull request title prefix must not be blank"))
	}
	return errors.Join(errs...)
}

// Locker serializes work on a key across relay processes.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// Relay routes webhook events to their handlers.
type Relay struct {
	installations github.Installations
	locker        Locker
	cfg           Config
}

// Option configures a Relay.
type Option func(*Relay)

// WithLocker serializes branch allocation per issue through l.
func WithLocker(l Locker) Option {
	return func(r *Relay) {
		r.locker = l
	}
}

// New creates a Relay that authenticates through installations.
func New(installations github.Installations, cfg Config, opts ...Option) (*Relay, error) {
	if installations == nil {
		return nil, errors.New("installations cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relay config: %w", err)
	}
	r := &Relay{installations: installations, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the relay's settings.
func (r *Relay) Config() Config {
	return r.cfg
}
