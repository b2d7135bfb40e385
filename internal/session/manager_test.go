package session_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pigateway/internal/platform/config"
	"pigateway/internal/session"
	sessionstore "pigateway/internal/session/store"
	dErrors "pigateway/pkg/domain-errors"
	"pigateway/pkg/requestcontext"
)

type ManagerSuite struct {
	suite.Suite
	manager *session.Manager
	now     time.Time
	ctx     context.Context
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	cfg := config.Config{
		Network:     config.NetworkTestnet,
		AppID:       "test-app",
		Environment: "testnet",
		Timeout:     30 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.manager = session.NewManager(cfg, sessionstore.NewInMemory(), logger)
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ManagerSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *ManagerSuite) TestAuthenticate() {
	s.Run("issues a session with one hour expiry", func() {
		sess, err := s.manager.Authenticate(s.ctx, "pioneer-1", "alice", "token-abc", map[string]any{"app": "wallet"})
		s.Require().NoError(err)
		s.NotEmpty(sess.ID)
		s.Equal("pioneer-1", sess.UserID)
		s.Equal("alice", sess.Username)
		s.Equal(s.now, sess.CreatedAt)
		s.Equal(s.now.Add(time.Hour), sess.ExpiresAt)
		s.True(sess.ExpiresAt.After(sess.CreatedAt))
	})

	s.Run("rejects empty user ID", func() {
		_, err := s.manager.Authenticate(s.ctx, "", "alice", "token", nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects empty username", func() {
		_, err := s.manager.Authenticate(s.ctx, "pioneer-1", "", "token", nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("distinct IDs for identical credentials", func() {
		a, err := s.manager.Authenticate(s.ctx, "pioneer-2", "bob", "token", nil)
		s.Require().NoError(err)
		b, err := s.manager.Authenticate(s.ctx, "pioneer-2", "bob", "token", nil)
		s.Require().NoError(err)
		s.NotEqual(a.ID, b.ID)
	})
}

func (s *ManagerSuite) TestVerifyIsMonotonicWithTime() {
	sess, err := s.manager.Authenticate(s.ctx, "pioneer-1", "alice", "token", nil)
	s.Require().NoError(err)

	s.Run("valid strictly before expiry", func() {
		got, err := s.manager.Verify(s.at(sess.ExpiresAt.Add(-time.Second)), sess.ID)
		s.Require().NoError(err)
		s.Require().NotNil(got)
		s.Equal(sess.ID, got.ID)
	})

	s.Run("nil strictly after expiry and evicted", func() {
		got, err := s.manager.Verify(s.at(sess.ExpiresAt.Add(time.Second)), sess.ID)
		s.Require().NoError(err)
		s.Nil(got)

		// A later verify before-expiry still sees nothing: the entry is gone.
		got, err = s.manager.Verify(s.at(sess.ExpiresAt.Add(-time.Minute)), sess.ID)
		s.Require().NoError(err)
		s.Nil(got)
	})

	s.Run("nil for unknown session", func() {
		got, err := s.manager.Verify(s.ctx, "does-not-exist")
		s.Require().NoError(err)
		s.Nil(got)
	})
}

func (s *ManagerSuite) TestRefresh() {
	sess, err := s.manager.Authenticate(s.ctx, "pioneer-1", "alice", "token", nil)
	s.Require().NoError(err)

	s.Run("extends a valid session", func() {
		ok, err := s.manager.Refresh(s.ctx, sess.ID, 2*time.Hour)
		s.Require().NoError(err)
		s.True(ok)

		got, err := s.manager.Verify(s.at(s.now.Add(90*time.Minute)), sess.ID)
		s.Require().NoError(err)
		s.Require().NotNil(got)
		s.Equal(s.now.Add(2*time.Hour), got.ExpiresAt)
	})

	s.Run("no-op on an expired session", func() {
		ok, err := s.manager.Refresh(s.at(s.now.Add(3*time.Hour)), sess.ID, time.Hour)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("no-op on an unknown session", func() {
		ok, err := s.manager.Refresh(s.ctx, "does-not-exist", time.Hour)
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *ManagerSuite) TestInvalidateAndCleanup() {
	s.Run("invalidate reports whether the session existed", func() {
		sess, err := s.manager.Authenticate(s.ctx, "pioneer-1", "alice", "token", nil)
		s.Require().NoError(err)

		ok, err := s.manager.Invalidate(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.True(ok)

		ok, err = s.manager.Invalidate(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("cleanup removes expired sessions and counts them", func() {
		_, err := s.manager.Authenticate(s.ctx, "pioneer-1", "alice", "token", nil)
		s.Require().NoError(err)
		_, err = s.manager.Authenticate(s.ctx, "pioneer-2", "bob", "token", nil)
		s.Require().NoError(err)

		removed, err := s.manager.CleanupExpired(s.at(s.now.Add(2 * time.Hour)))
		s.Require().NoError(err)
		s.Equal(2, removed)

		n, err := s.manager.ActiveCount(s.at(s.now.Add(2 * time.Hour)))
		s.Require().NoError(err)
		s.Zero(n)
	})
}
