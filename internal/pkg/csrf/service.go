// Package csrf issues and validates anti-forgery tokens bound to a session.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ses-portal/internal/pkg/metrics"

	"go.uber.org/zap"
)

const tokenBytes = 32

var ErrNoSession = errors.New("csrf: no session bound")

type Config struct {
	MaxAge     time.Duration
	HeaderName string
	FieldName  string
}

// Field is what a form or AJAX client needs to echo a token back.
type Field struct {
	Token      string `json:"token"`
	HeaderName string `json:"header_name"`
	FieldName  string `json:"field_name"`
}

type Service struct {
	store  Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-CSRF-Token"
	}
	if cfg.FieldName == "" {
		cfg.FieldName = "csrf_token"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: store, cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) HeaderName() string { return s.cfg.HeaderName }
func (s *Service) FieldName() string  { return s.cfg.FieldName }

// Extractor returns a request extractor using the configured carrier names.
func (s *Service) Extractor() Extractor {
	return Extractor{HeaderName: s.cfg.HeaderName, FieldName: s.cfg.FieldName}
}

// Issue stores a fresh token for scope, replacing any previous one.
func (s *Service) Issue(ctx context.Context, sessionID string, scope Scope) (string, error) {
	if sessionID == "" {
		return "", ErrNoSession
	}
	if !scope.valid() {
		return "", fmt.Errorf("csrf: invalid scope %q", scope)
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("csrf: failed to generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := s.store.Put(ctx, sessionID, scope, Record{Token: token, IssuedAt: s.now()}, s.cfg.MaxAge); err != nil {
		return "", err
	}
	// each issue pushes the hash expiry out, so aged-out siblings go here
	if _, err := s.CleanExpired(ctx, sessionID); err != nil {
		s.logger.Warn("failed to prune csrf tokens", zap.Error(err))
	}
	return token, nil
}

// Validate reports whether token is the live token for scope. It fails
// closed on every error. Form tokens are consumed by the first success.
func (s *Service) Validate(ctx context.Context, sessionID, token string, scope Scope) bool {
	ok := s.validate(ctx, sessionID, token, scope)
	outcome := "rejected"
	if ok {
		outcome = "accepted"
	}
	metrics.CSRFValidations.WithLabelValues(scope.Kind(), outcome).Inc()
	return ok
}

func (s *Service) validate(ctx context.Context, sessionID, token string, scope Scope) bool {
	if sessionID == "" || token == "" || !scope.valid() {
		return false
	}

	rec, raw, err := s.store.Get(ctx, sessionID, scope)
	if err != nil {
		s.logger.Warn("csrf token lookup failed", zap.String("scope", string(scope)), zap.Error(err))
		return false
	}
	if rec == nil {
		return false
	}

	if s.expired(*rec) {
		if err := s.store.Delete(ctx, sessionID, scope); err != nil {
			s.logger.Warn("failed to purge expired csrf token", zap.Error(err))
		}
		return false
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(rec.Token)) != 1 {
		return false
	}

	if !scope.IsForm() {
		return true
	}

	consumed, err := s.store.ConsumeIfUnchanged(ctx, sessionID, scope, raw)
	if err != nil {
		s.logger.Warn("csrf token consume failed", zap.String("scope", string(scope)), zap.Error(err))
		return false
	}
	return consumed
}

// CleanExpired purges every aged-out token of a session and returns how many
// were removed. Running it twice is harmless.
func (s *Service) CleanExpired(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, nil
	}

	all, err := s.store.All(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for scope, rec := range all {
		if !s.expired(rec) {
			continue
		}
		if err := s.store.Delete(ctx, sessionID, scope); err != nil {
			return removed, fmt.Errorf("failed to purge csrf token: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Field returns the live global token, issuing one when none is usable.
func (s *Service) Field(ctx context.Context, sessionID string) (Field, error) {
	rec, _, err := s.store.Get(ctx, sessionID, GlobalScope)
	if err == nil && rec != nil && !s.expired(*rec) {
		return s.field(rec.Token), nil
	}

	token, err := s.Issue(ctx, sessionID, GlobalScope)
	if err != nil {
		return Field{}, err
	}
	return s.field(token), nil
}

// Forget drops every token of a session.
func (s *Service) Forget(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.store.Forget(ctx, sessionID)
}

// Move carries tokens over to a regenerated session identity.
func (s *Service) Move(ctx context.Context, fromSessionID, toSessionID string) error {
	if fromSessionID == "" || toSessionID == "" || fromSessionID == toSessionID {
		return nil
	}
	return s.store.Move(ctx, fromSessionID, toSessionID)
}

func (s *Service) field(token string) Field {
	return Field{Token: token, HeaderName: s.cfg.HeaderName, FieldName: s.cfg.FieldName}
}

func (s *Service) expired(rec Record) bool {
	return rec.IssuedAt.IsZero() || s.now().Sub(rec.IssuedAt) > s.cfg.MaxAge
}

// RequiresValidation reports whether requests with this method must carry a token.
func RequiresValidation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}
