// Package client is the gateway's single composition surface. Handlers talk
// to the Facade; the Facade owns the managers, token issuance and the
// background maintenance loop.
package client

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"pigateway/internal/audit"
	jwttoken "pigateway/internal/jwt_token"
	"pigateway/internal/payment"
	"pigateway/internal/platform/config"
	"pigateway/internal/session"
	"pigateway/pkg/requestcontext"
)

// DefaultMaintenanceInterval is how often the facade sweeps expired sessions
// and logs ledger statistics.
const DefaultMaintenanceInterval = 5 * time.Minute

type Facade struct {
	cfg      config.Config
	sessions *session.Manager
	payments *payment.Manager
	tokens   *jwttoken.JWTService
	audit    *audit.Publisher
	logger   *slog.Logger
	interval time.Duration
}

// Option configures the Facade.
type Option func(*Facade)

// WithMaintenanceInterval overrides the sweep cadence. Tests use this to
// avoid waiting minutes for a tick.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(f *Facade) {
		f.interval = d
	}
}

func New(cfg config.Config, sessions *session.Manager, payments *payment.Manager, tokens *jwttoken.JWTService, publisher *audit.Publisher, logger *slog.Logger, opts ...Option) *Facade {
	f := &Facade{
		cfg:      cfg,
		sessions: sessions,
		payments: payments,
		tokens:   tokens,
		audit:    publisher,
		logger:   logger,
		interval: DefaultMaintenanceInterval,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AuthResult pairs a new session with the access token that unlocks the
// payment endpoints.
type AuthResult struct {
	Session     *session.Session `json:"session"`
	AccessToken string           `json:"access_token"`
}

// Authenticate opens a session for the Pi user and issues a matching access
// token. The token expiry tracks the session TTL.
func (f *Facade) Authenticate(ctx context.Context, userID, username, piAccessToken string, metadata map[string]any) (*AuthResult, error) {
	sess, err := f.sessions.Authenticate(ctx, userID, username, piAccessToken, metadata)
	if err != nil {
		return nil, err
	}

	token, err := f.tokens.GenerateAccessToken(userID, sess.ID, session.DefaultTTL)
	if err != nil {
		// The stored session would be unreachable without its token.
		if _, cleanupErr := f.sessions.Invalidate(ctx, sess.ID); cleanupErr != nil {
			f.logger.WarnContext(ctx, "failed to roll back session after token failure", "session_id", sess.ID, "error", cleanupErr)
		}
		return nil, err
	}

	f.audit.Emit(ctx, audit.Event{Action: audit.ActionSessionIssued, UserID: userID})
	return &AuthResult{Session: sess, AccessToken: token}, nil
}

// VerifySession reports the session if it is currently valid, nil otherwise.
func (f *Facade) VerifySession(ctx context.Context, sessionID string) (*session.Session, error) {
	return f.sessions.Verify(ctx, sessionID)
}

// Logout invalidates the session.
func (f *Facade) Logout(ctx context.Context, sessionID string) (bool, error) {
	ok, err := f.sessions.Invalidate(ctx, sessionID)
	if err == nil && ok {
		f.audit.Emit(ctx, audit.Event{Action: audit.ActionSessionRevoked})
	}
	return ok, err
}

func (f *Facade) CreatePayment(ctx context.Context, amount float64, memo, userID string, metadata map[string]any) (*payment.Record, error) {
	rec, err := f.payments.Create(ctx, amount, memo, userID, metadata)
	if err != nil {
		return nil, err
	}
	f.audit.Emit(ctx, audit.PaymentEvent(audit.ActionPaymentCreated, rec.ID, userID, rec.Amount))
	return rec, nil
}

func (f *Facade) ApprovePayment(ctx context.Context, paymentID string) (*payment.Record, error) {
	rec, err := f.payments.Approve(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	f.audit.Emit(ctx, audit.PaymentEvent(audit.ActionPaymentApproved, rec.ID, rec.UserID, rec.Amount))
	return rec, nil
}

func (f *Facade) CompletePayment(ctx context.Context, paymentID, txHash string) (*payment.Record, error) {
	rec, err := f.payments.Complete(ctx, paymentID, txHash)
	if err != nil {
		return nil, err
	}
	f.audit.Emit(ctx, audit.PaymentEvent(audit.ActionPaymentCompleted, rec.ID, rec.UserID, rec.Amount))
	return rec, nil
}

func (f *Facade) CancelPayment(ctx context.Context, paymentID, reason string) (*payment.Record, error) {
	rec, err := f.payments.Cancel(ctx, paymentID, reason)
	if err != nil {
		return nil, err
	}
	f.audit.Emit(ctx, audit.PaymentEvent(audit.ActionPaymentCancelled, rec.ID, rec.UserID, rec.Amount))
	return rec, nil
}

func (f *Facade) GetPayment(ctx context.Context, paymentID string) (*payment.Record, error) {
	return f.payments.Get(ctx, paymentID)
}

func (f *Facade) ListUserPayments(ctx context.Context, userID string, status payment.Status, limit int) ([]*payment.Record, error) {
	return f.payments.ListUserPayments(ctx, userID, status, limit)
}

func (f *Facade) VerifyPayment(ctx context.Context, paymentID, txHash string) (*payment.VerificationResult, error) {
	return f.payments.Verify(ctx, paymentID, txHash)
}

func (f *Facade) PaymentStatistics(ctx context.Context) (*payment.Statistics, error) {
	return f.payments.Statistics(ctx)
}

// Status is the aggregate operational view.
type Status struct {
	Network        config.Network      `json:"network"`
	ActiveSessions int                 `json:"active_sessions"`
	Payments       *payment.Statistics `json:"payments"`
	Config         config.Redacted     `json:"config"`
	Timestamp      time.Time           `json:"timestamp"`
}

func (f *Facade) Status(ctx context.Context) (*Status, error) {
	sessions, err := f.sessions.ActiveCount(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := f.payments.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Network:        f.cfg.Network,
		ActiveSessions: sessions,
		Payments:       stats,
		Config:         f.cfg.ToRedacted(),
		Timestamp:      requestcontext.Now(ctx),
	}, nil
}

// Health is the per-subcomponent boolean breakdown.
type Health struct {
	ConfigValid    bool `json:"config_valid"`
	SessionManager bool `json:"session_manager"`
	PaymentManager bool `json:"payment_manager"`
	Healthy        bool `json:"healthy"`
}

func (f *Facade) Health(ctx context.Context) Health {
	h := Health{ConfigValid: f.cfg.Validate() == nil}

	if _, err := f.sessions.ActiveCount(ctx); err == nil {
		h.SessionManager = true
	}
	if _, err := f.payments.Statistics(ctx); err == nil {
		h.PaymentManager = true
	}
	h.Healthy = h.ConfigValid && h.SessionManager && h.PaymentManager
	return h
}

// Run drives background maintenance until the context is cancelled. Returns
// after all maintenance goroutines have joined, so shutdown is bounded by
// the caller's context.
func (f *Facade) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.maintenanceLoop(ctx)
	})
	return g.Wait()
}

func (f *Facade) maintenanceLoop(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.InfoContext(ctx, "maintenance loop started", "interval", f.interval)
	for {
		select {
		case <-ctx.Done():
			f.logger.InfoContext(ctx, "maintenance loop stopped")
			return ctx.Err()
		case <-ticker.C:
			f.maintainOnce(ctx)
		}
	}
}

func (f *Facade) maintainOnce(ctx context.Context) {
	removed, err := f.sessions.CleanupExpired(ctx)
	if err != nil {
		f.logger.WarnContext(ctx, "session sweep failed", "error", err)
	}

	stats, err := f.payments.Statistics(ctx)
	if err != nil {
		f.logger.WarnContext(ctx, "statistics aggregation failed", "error", err)
		return
	}
	f.logger.InfoContext(ctx, "maintenance pass",
		"sessions_removed", removed,
		"total_payments", stats.TotalPayments,
		"completed_volume", stats.CompletedVolume,
		"unique_users", stats.UniqueUsers,
	)
}
