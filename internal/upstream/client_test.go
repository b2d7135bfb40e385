package upstream

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pigateway/internal/platform/config"
	dErrors "pigateway/pkg/domain-errors"
)

func newTestClient(t *testing.T, serverURL string, maxRetries int) *Client {
	t.Helper()
	cfg := config.Config{
		APIEndpoint: serverURL,
		APIKey:      "test-key",
		Timeout:     2 * time.Second,
		MaxRetries:  maxRetries,
		VerifySSL:   true,
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return NewClient(cfg, logger)
}

func TestLookupPayment(t *testing.T) {
	t.Run("parses a verified payment and sends the API key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Key test-key", r.Header.Get("Authorization"))
			assert.Equal(t, "/v2/payments/pi_pay_0000000000000001", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"identifier": "pi_pay_0000000000000001",
				"amount": 3.14,
				"transaction": {"txid": "0xchain", "verified": true},
				"status": {"transaction_verified": true, "developer_approved": true}
			}`))
		}))
		defer srv.Close()

		got, err := newTestClient(t, srv.URL, 0).LookupPayment(context.Background(), "pi_pay_0000000000000001")
		require.NoError(t, err)
		assert.Equal(t, "pi_pay_0000000000000001", got.Identifier)
		assert.Equal(t, 3.14, got.Amount)
		assert.Equal(t, "0xchain", got.TxID)
		assert.True(t, got.Verified)
	})

	t.Run("unverified when the status flags disagree", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{
				"identifier": "pi_pay_0000000000000002",
				"amount": 1,
				"transaction": {"txid": "0xchain", "verified": true},
				"status": {"transaction_verified": false}
			}`))
		}))
		defer srv.Close()

		got, err := newTestClient(t, srv.URL, 0).LookupPayment(context.Background(), "pi_pay_0000000000000002")
		require.NoError(t, err)
		assert.False(t, got.Verified)
	})

	t.Run("retries 5xx up to the budget then gives up as unavailable", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, 2).LookupPayment(context.Background(), "pi_pay_0000000000000003")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("recovers when a retry succeeds", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"identifier": "pi_pay_0000000000000004", "amount": 1,
				"transaction": {"txid": "0x1", "verified": true},
				"status": {"transaction_verified": true}}`))
		}))
		defer srv.Close()

		got, err := newTestClient(t, srv.URL, 2).LookupPayment(context.Background(), "pi_pay_0000000000000004")
		require.NoError(t, err)
		assert.True(t, got.Verified)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("does not retry 404", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, 3).LookupPayment(context.Background(), "pi_pay_0000000000000005")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("does not retry 401", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, 3).LookupPayment(context.Background(), "pi_pay_0000000000000006")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("honours context cancellation during backoff", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := newTestClient(t, srv.URL, 5).LookupPayment(ctx, "pi_pay_0000000000000007")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
