// Package server exposes the relay over HTTP: a signed webhook endpoint and a health check.
package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/relay"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	maxBodySize     = 25 << 20 // GitHub caps webhook payloads at 25MB
	readTimeout     = 30 * time.Second
	writeTimeout    = 60 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 10 * time.Second
	signaturePrefix = "sha256="
)

// Handler processes a parsed webhook event.
type Handler interface {
	Handle(ctx context.Context, ev relay.Event) (relay.Result, error)
}

// DeliveryLog remembers webhook deliveries that were already processed. A delivery that
// fails is forgotten so GitHub's redelivery of the same id is handled again.
type DeliveryLog interface {
	MarkDelivery(ctx context.Context, id string, ttl time.Duration) (bool, error)
	ForgetDelivery(ctx context.Context, id string) error
}

// Config configures a Server.
type Config struct {
	Handler       Handler
	Deliveries    DeliveryLog // optional
	WebhookSecret string
	Port          int
	DeliveryTTL   time.Duration
}

// Server is the relay's HTTP front end.
type Server struct {
	echo       *echo.Echo
	handler    Handler
	deliveries DeliveryLog
	now        func() time.Time
	secret     []byte
	port       int
	ttl        time.Duration
}

// New builds a server with its routes registered.
func New(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("webhook secret is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", maxBodySize>>20)))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.InfoContext(c.Request().Context(), "Request served", "component", "server",
				"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s := &Server{
		echo:       e,
		handler:    cfg.Handler,
		deliveries: cfg.Deliveries,
		now:        time.Now,
		secret:     []byte(cfg.WebhookSecret),
		port:       cfg.Port,
		ttl:        cfg.DeliveryTTL,
	}
	e.GET("/health", s.health)
	e.POST("/", s.webhook)
	return s, nil
}

// ServeHTTP lets the server be mounted or tested as a plain http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting webhook server", "component", "server", "port", s.port)
		errCh <- s.echo.StartServer(srv)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down webhook server", "component", "server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) webhook(c echo.Context) error {
	ctx := c.Request().Context()
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return c.String(http.StatusBadRequest, "Unable to read request body")
	}

	if !VerifySignature(s.secret, body, req.Header.Get("X-Hub-Signature-256")) {
		slog.WarnContext(ctx, "Rejected webhook with invalid signature", "component", "server",
			"remote", c.RealIP())
		return c.String(http.StatusUnauthorized, "Invalid signature")
	}

	eventType := req.Header.Get("X-GitHub-Event")
	delivery := req.Header.Get("X-GitHub-Delivery")
	slog.InfoContext(ctx, "Received webhook", "component", "server", "event", eventType, "delivery", delivery)

	marked := false
	if s.deliveries != nil && delivery != "" {
		first, err := s.deliveries.MarkDelivery(ctx, delivery, s.ttl)
		marked = err == nil && first
		switch {
		case err != nil:
			slog.WarnContext(ctx, "Delivery log unavailable", "component", "server", "delivery", delivery, "error", err)
		case !first:
			slog.InfoContext(ctx, "Duplicate delivery ignored", "component", "server", "delivery", delivery)
			return c.String(http.StatusOK, "Duplicate delivery ignored")
		}
	}

	ev, err := relay.ParseEvent(eventType, body)
	if err != nil {
		slog.WarnContext(ctx, "Malformed webhook payload", "component", "server", "event", eventType, "error", err)
		s.forget(ctx, marked, delivery)
		return c.String(http.StatusBadRequest, "Malformed payload")
	}

	result, err := s.handler.Handle(ctx, ev)
	if err != nil {
		slog.ErrorContext(ctx, "Webhook processing failed", "component", "server",
			"event", eventType, "delivery", delivery, "error", err)
		s.forget(ctx, marked, delivery)
		return c.String(http.StatusInternalServerError, "Internal server error")
	}

	slog.InfoContext(ctx, "Webhook processed", "component", "server",
		"event", eventType, "status", result.Status.String(), "message", result.Message)
	if result.Kind != "" {
		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"type":    result.Kind,
			"message": result.Message,
		})
	}
	return c.String(http.StatusOK, result.Message)
}

// forget releases a delivery id recorded for a request that failed.
func (s *Server) forget(ctx context.Context, marked bool, delivery string) {
	if !marked {
		return
	}
	if err := s.deliveries.ForgetDelivery(context.WithoutCancel(ctx), delivery); err != nil {
		slog.WarnContext(ctx, "Failed to forget delivery", "component", "server", "delivery", delivery, "error", err)
	}
}

// VerifySignature checks a GitHub "sha256=<hex>" HMAC signature of body.
func VerifySignature(secret, body []byte, signature string) bool {
	sig, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
