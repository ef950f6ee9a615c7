package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/bingwa/domain/order"
)

const (
	maxWebhookBodyBytes = 64 << 10
	signatureHeader     = "Upstash-Signature"

	defaultProviderCancelReason = "cancelled by provider"
)

type fulfillmentUpdate struct {
	OrderID string       `json:"orderId"`
	Status  order.Status `json:"status"`
	Note    string       `json:"note,omitempty"`
}

type fulfillmentResult struct {
	OrderID string       `json:"orderId"`
	Status  order.Status `json:"status"`
	Applied bool         `json:"applied"`
}

// handleFulfillment applies provider status updates. A redelivered update for
// a status the order already has is acknowledged without change.
func handleFulfillment(orders Fulfillment, verifier SignatureVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With().Str("component", "webhook").Str("request_id", chimw.GetReqID(r.Context())).Logger()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_body", "request body could not be read")
			return
		}
		if err := verifier.Verify(r.Header.Get(signatureHeader), body); err != nil {
			logger.Warn().Err(err).Msg("webhook signature rejected")
			writeError(w, r, http.StatusUnauthorized, "invalid_signature", "webhook signature verification failed")
			return
		}

		var upd fulfillmentUpdate
		if err := json.Unmarshal(body, &upd); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_body", "request body must be a JSON status update")
			return
		}
		upd.OrderID = strings.TrimSpace(upd.OrderID)
		if upd.OrderID == "" {
			writeError(w, r, http.StatusBadRequest, "invalid_body", "orderId is required")
			return
		}
		if !upd.Status.Valid() || upd.Status == order.StatusPending {
			writeError(w, r, http.StatusBadRequest, "invalid_status", "status must be confirmed, in_progress, completed or cancelled")
			return
		}

		current, err := orders.Get(r.Context(), upd.OrderID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if current.Status == upd.Status {
			writeJSON(w, http.StatusOK, fulfillmentResult{OrderID: current.ID, Status: current.Status})
			return
		}

		var updated order.Order
		if upd.Status == order.StatusCancelled {
			reason := strings.TrimSpace(upd.Note)
			if reason == "" {
				reason = defaultProviderCancelReason
			}
			updated, err = orders.Cancel(r.Context(), upd.OrderID, reason, true)
		} else {
			updated, err = orders.Advance(r.Context(), upd.OrderID, upd.Status, upd.Note)
		}
		if err != nil {
			logger.Info().Err(err).Str("order_id", upd.OrderID).Str("status", string(upd.Status)).Msg("fulfillment update rejected")
			writeDomainError(w, r, err)
			return
		}

		logger.Info().Str("order_id", updated.ID).Str("status", string(updated.Status)).Msg("fulfillment update applied")
		writeJSON(w, http.StatusOK, fulfillmentResult{OrderID: updated.ID, Status: updated.Status, Applied: true})
	}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var te *order.TransitionError
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "order not found")
	case errors.As(err, &te):
		writeError(w, r, http.StatusConflict, "illegal_transition", te.Error())
	case errors.Is(err, order.ErrIllegalTransition), errors.Is(err, order.ErrConflict):
		writeError(w, r, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, order.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "update could not be applied")
	}
}
