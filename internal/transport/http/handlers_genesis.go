package httptransport

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pigateway/internal/genesis"
	dErrors "pigateway/pkg/domain-errors"
	"pigateway/pkg/platform/httputil"
)

// SignatureHeader carries the webhook HMAC from the payment network.
const SignatureHeader = "X-Pi-Signature"

const maxWebhookBody = 1 << 20

// GenesisHandler wires the fee and webhook endpoints to the bridge.
type GenesisHandler struct {
	bridge *genesis.Bridge
	logger *slog.Logger
}

func NewGenesisHandler(bridge *genesis.Bridge, logger *slog.Logger) *GenesisHandler {
	return &GenesisHandler{bridge: bridge, logger: logger}
}

func (h *GenesisHandler) Register(r chi.Router) {
	r.Post("/initiate-fee", h.HandleInitiateFee)
	r.Post("/webhook", h.HandleWebhook)
	r.Get("/pioneer-status/{userID}", h.HandlePioneerStatus)
	r.Get("/fees", h.HandleFees)
}

type initiateFeeRequest struct {
	UserID   string         `json:"user_id"`
	FeeType  string         `json:"fee_type"`
	Metadata map[string]any `json:"metadata"`
}

func (h *GenesisHandler) HandleInitiateFee(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[initiateFeeRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.UserID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "user_id is required"))
		return
	}

	rec, err := h.bridge.InitiateFee(r.Context(), req.UserID, req.FeeType, req.Metadata)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

// HandleWebhook reads the raw body so the HMAC covers exactly the bytes the
// sender signed, then hands off to the bridge.
func (h *GenesisHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read webhook body"))
		return
	}

	if err := h.bridge.HandleWebhook(r.Context(), body, r.Header.Get(SignatureHeader)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "webhook processed",
	})
}

func (h *GenesisHandler) HandlePioneerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.bridge.PioneerStatusFor(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *GenesisHandler) HandleFees(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"fees": genesis.Fees()})
}
