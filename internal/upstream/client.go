// Package upstream is the thin HTTP client for the Pi platform API. It is
// consulted only for mainnet payment verification; everything else the
// gateway does is local.
package upstream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"pigateway/internal/payment"
	"pigateway/internal/platform/config"
	dErrors "pigateway/pkg/domain-errors"
)

// Client talks to the platform payments API. Implements payment.Verifier.
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-out for self-signed test endpoints
	}
	return &Client{
		baseURL:    cfg.APIEndpoint,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// paymentDTO is the platform wire format for GET /v2/payments/{id}.
type paymentDTO struct {
	Identifier  string  `json:"identifier"`
	Amount      float64 `json:"amount"`
	Transaction struct {
		TxID     string `json:"txid"`
		Verified bool   `json:"verified"`
	} `json:"transaction"`
	Status struct {
		DeveloperApproved   bool `json:"developer_approved"`
		TransactionVerified bool `json:"transaction_verified"`
		DeveloperCompleted  bool `json:"developer_completed"`
		Cancelled           bool `json:"cancelled"`
	} `json:"status"`
}

// LookupPayment fetches the platform's view of a payment. Transient failures
// (network errors, 5xx) are retried up to the configured budget; 4xx are not.
func (c *Client) LookupPayment(ctx context.Context, paymentID string) (*payment.UpstreamPayment, error) {
	url := fmt.Sprintf("%s/v2/payments/%s", c.baseURL, paymentID)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			c.logger.WarnContext(ctx, "retrying platform API call",
				"payment_id", paymentID,
				"attempt", attempt,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		dto, retryable, err := c.fetch(ctx, url)
		if err == nil {
			return &payment.UpstreamPayment{
				Identifier: dto.Identifier,
				Amount:     dto.Amount,
				TxID:       dto.Transaction.TxID,
				Verified:   dto.Transaction.Verified && dto.Status.TransactionVerified,
			}, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeUnavailable, "platform API unreachable")
}

func (c *Client) fetch(ctx context.Context, url string) (*paymentDTO, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var dto paymentDTO
		if err := json.Unmarshal(body, &dto); err != nil {
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "malformed platform API response")
		}
		return &dto, false, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, dErrors.New(dErrors.CodeNotFound, "payment not known to the platform")
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, dErrors.New(dErrors.CodeUnauthorized, "platform API rejected the API key")
	case resp.StatusCode >= 500:
		return nil, true, dErrors.Newf(dErrors.CodeUnavailable, "platform API returned %d", resp.StatusCode)
	default:
		return nil, false, dErrors.Newf(dErrors.CodeInternal, "unexpected platform API status %d", resp.StatusCode)
	}
}
