package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pigateway/internal/client"
	"pigateway/internal/payment"
	dErrors "pigateway/pkg/domain-errors"
	"pigateway/pkg/platform/httputil"
	"pigateway/pkg/requestcontext"
)

// PiNetworkHandler wires the session and payment endpoints to the facade.
type PiNetworkHandler struct {
	facade *client.Facade
	logger *slog.Logger
}

func NewPiNetworkHandler(facade *client.Facade, logger *slog.Logger) *PiNetworkHandler {
	return &PiNetworkHandler{facade: facade, logger: logger}
}

// RegisterPublic mounts the endpoints reachable without a bearer token.
func (h *PiNetworkHandler) RegisterPublic(r chi.Router) {
	r.Post("/authenticate", h.HandleAuthenticate)
	r.Post("/session/verify", h.HandleVerifySession)
	r.Post("/logout", h.HandleLogout)
	r.Get("/status", h.HandleStatus)
	r.Get("/health", h.HandleHealth)
	r.Get("/statistics", h.HandleStatistics)
}

// RegisterPayments mounts the JWT-protected payment endpoints.
func (h *PiNetworkHandler) RegisterPayments(r chi.Router) {
	r.Post("/payments/create", h.HandleCreatePayment)
	r.Post("/payments/approve", h.HandleApprovePayment)
	r.Post("/payments/complete", h.HandleCompletePayment)
	r.Post("/payments/cancel", h.HandleCancelPayment)
	r.Post("/payments/verify", h.HandleVerifyPayment)
	r.Get("/payments/user/{userID}", h.HandleUserPayments)
	r.Get("/payments/{paymentID}", h.HandleGetPayment)
}

type authenticateRequest struct {
	UserID      string         `json:"user_id"`
	Username    string         `json:"username"`
	AccessToken string         `json:"access_token"`
	Metadata    map[string]any `json:"metadata"`
}

func (h *PiNetworkHandler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[authenticateRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.facade.Authenticate(r.Context(), req.UserID, req.Username, req.AccessToken, req.Metadata)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (h *PiNetworkHandler) HandleVerifySession(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[sessionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sess, err := h.facade.VerifySession(r.Context(), req.SessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":   sess != nil,
		"session": sess,
	})
}

func (h *PiNetworkHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[sessionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ok, err := h.facade.Logout(r.Context(), req.SessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"logged_out": ok})
}

type createPaymentRequest struct {
	Amount   float64        `json:"amount"`
	Memo     string         `json:"memo"`
	Metadata map[string]any `json:"metadata"`
}

func (h *PiNetworkHandler) HandleCreatePayment(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[createPaymentRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// The ledger owner is the authenticated user, never a body field.
	userID := requestcontext.UserID(r.Context())
	rec, err := h.facade.CreatePayment(r.Context(), req.Amount, req.Memo, userID, req.Metadata)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

type paymentActionRequest struct {
	PaymentID string `json:"payment_id"`
	TxHash    string `json:"tx_hash"`
	Reason    string `json:"reason"`
}

func (h *PiNetworkHandler) HandleApprovePayment(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[paymentActionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.facade.ApprovePayment(r.Context(), req.PaymentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *PiNetworkHandler) HandleCompletePayment(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[paymentActionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.facade.CompletePayment(r.Context(), req.PaymentID, req.TxHash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *PiNetworkHandler) HandleCancelPayment(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[paymentActionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.facade.CancelPayment(r.Context(), req.PaymentID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *PiNetworkHandler) HandleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[paymentActionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.facade.VerifyPayment(r.Context(), req.PaymentID, req.TxHash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *PiNetworkHandler) HandleGetPayment(w http.ResponseWriter, r *http.Request) {
	rec, err := h.facade.GetPayment(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *PiNetworkHandler) HandleUserPayments(w http.ResponseWriter, r *http.Request) {
	var status payment.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := payment.ParseStatus(raw)
		if !ok {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown payment status %q", raw))
			return
		}
		status = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	records, err := h.facade.ListUserPayments(r.Context(), chi.URLParam(r, "userID"), status, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"payments": records,
		"count":    len(records),
	})
}

func (h *PiNetworkHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.facade.Status(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *PiNetworkHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.facade.Health(r.Context())
	code := http.StatusOK
	if !health.Healthy {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, health)
}

func (h *PiNetworkHandler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.facade.PaymentStatistics(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
