package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"pigateway/internal/platform/config"
	dErrors "pigateway/pkg/domain-errors"
	"pigateway/pkg/requestcontext"
)

// DefaultTTL is how long a freshly issued session stays valid.
const DefaultTTL = time.Hour

// Store is the persistence contract the manager depends on. It mirrors the
// interface in internal/session/store; it is declared here so this package
// does not import its own sub-package, which would be an import cycle.
type Store interface {
	Create(ctx context.Context, s *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)
	ExtendIfValid(ctx context.Context, id string, now time.Time, until time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context, now time.Time) (int, error)
}

// Manager issues, verifies, refreshes and expires sessions. All state lives
// behind the Store interface; the manager itself is stateless and safe for
// concurrent use.
type Manager struct {
	cfg    config.Config
	store  Store
	logger *slog.Logger
}

func NewManager(cfg config.Config, store Store, logger *slog.Logger) *Manager {
	return &Manager{cfg: cfg, store: store, logger: logger}
}

// Authenticate creates a session for the given Pi credentials.
// The access token is the opaque upstream credential; the gateway stores it
// but never interprets it.
func (m *Manager) Authenticate(ctx context.Context, userID, username, accessToken string, metadata map[string]any) (*Session, error) {
	if userID == "" || username == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials: user ID and username required")
	}

	now := requestcontext.Now(ctx)
	sess := &Session{
		ID:          m.newSessionID(userID, now),
		UserID:      userID,
		Username:    username,
		AccessToken: accessToken,
		CreatedAt:   now,
		ExpiresAt:   now.Add(DefaultTTL),
		Metadata:    metadata,
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]any{}
	}

	if err := m.store.Create(ctx, sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store session")
	}

	m.logger.InfoContext(ctx, "user authenticated",
		"username", username,
		"user_id", userID,
		"expires_at", sess.ExpiresAt,
	)
	return sess, nil
}

// Verify returns the session if present and unexpired. Expired sessions are
// evicted on sight. Absent and expired both come back as (nil, nil): the
// caller sees "no valid session", never an error.
func (m *Manager) Verify(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil //nolint:nilerr // absent session is not an error for callers
	}
	if sess.Expired(requestcontext.Now(ctx)) {
		if _, err := m.store.Delete(ctx, sessionID); err != nil {
			m.logger.WarnContext(ctx, "failed to evict expired session", "session_id", sessionID, "error", err)
		}
		return nil, nil
	}
	return sess, nil
}

// Refresh extends the session expiry if it is currently valid.
func (m *Manager) Refresh(ctx context.Context, sessionID string, extend time.Duration) (bool, error) {
	if extend <= 0 {
		extend = DefaultTTL
	}
	now := requestcontext.Now(ctx)
	ok, err := m.store.ExtendIfValid(ctx, sessionID, now, now.Add(extend))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to refresh session")
	}
	return ok, nil
}

// Invalidate removes the session unconditionally (logout).
func (m *Manager) Invalidate(ctx context.Context, sessionID string) (bool, error) {
	ok, err := m.store.Delete(ctx, sessionID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to invalidate session")
	}
	if ok {
		m.logger.InfoContext(ctx, "session invalidated", "session_id", sessionID)
	}
	return ok, nil
}

// CleanupExpired sweeps expired sessions. Safe to call on a timer.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	removed, err := m.store.DeleteExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep sessions")
	}
	if removed > 0 {
		m.logger.InfoContext(ctx, "cleaned up expired sessions", "count", removed)
	}
	return removed, nil
}

// ActiveCount sweeps and then counts remaining sessions.
func (m *Manager) ActiveCount(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	if _, err := m.store.DeleteExpired(ctx, now); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep sessions")
	}
	n, err := m.store.Count(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count sessions")
	}
	return n, nil
}

// newSessionID derives an opaque identifier from the user, issuance time and
// app ID, with random entropy so colliding timestamps still produce distinct
// IDs under concurrent authentication.
func (m *Manager) newSessionID(userID string, now time.Time) string {
	var nonce [8]byte
	_, _ = rand.Read(nonce[:])
	sum := sha256.Sum256(fmt.Appendf(nil, "%s%d%s%s", userID, now.UnixNano(), m.cfg.AppID, hex.EncodeToString(nonce[:])))
	return hex.EncodeToString(sum[:])
}
