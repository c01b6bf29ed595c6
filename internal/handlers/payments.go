package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/fleetify/api/internal/httpx"
	"github.com/fleetify/api/internal/matching"
	"github.com/fleetify/api/internal/store"
)

const (
	defaultMatchLimit = 5
	maxMatchLimit     = 50
)

type linkRequest struct {
	InvoiceID openapi_types.UUID `json:"invoiceId"`
	Relink    bool               `json:"relink"`
}

func (s *Server) ListPaymentMatches(w http.ResponseWriter, r *http.Request, paymentID openapi_types.UUID) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	limit := defaultMatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxMatchLimit {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 50", nil)
			return
		}
		limit = n
	}
	minConfidence := 0.0
	if raw := r.URL.Query().Get("minConfidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_min_confidence", "minConfidence must be between 0 and 100", nil)
			return
		}
		minConfidence = v
	}

	candidates, err := s.Matcher.Suggest(r.Context(), actor.TenantID, paymentID, limit, minConfidence)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "payment_not_found", "Payment not found", nil)
			return
		}
		httpx.WriteInternal(w, r, s.Logger, "payment_match_failed", "Failed to match payment", err, "payment_id", paymentID.String())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"paymentId":  paymentID,
		"candidates": candidates,
	})
}

func (s *Server) LinkPayment(w http.ResponseWriter, r *http.Request, paymentID openapi_types.UUID) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if req.InvoiceID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "invoiceId is required", nil)
		return
	}

	result, err := s.Linker.Link(r.Context(), actor.TenantID, paymentID, req.InvoiceID, req.Relink)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			httpx.WriteError(w, r, http.StatusNotFound, "not_found", err.Error(), nil)
		case errors.Is(err, matching.ErrAlreadyLinked):
			httpx.WriteError(w, r, http.StatusConflict, "payment_already_linked", err.Error(), nil)
		case errors.Is(err, matching.ErrInvoiceSettled):
			httpx.WriteError(w, r, http.StatusConflict, "invoice_settled", err.Error(), nil)
		case errors.Is(err, matching.ErrInvalidAmount):
			httpx.WriteError(w, r, http.StatusUnprocessableEntity, "invalid_amount", err.Error(), nil)
		default:
			httpx.WriteInternal(w, r, s.Logger, "payment_link_failed", "Failed to link payment", err, "payment_id", paymentID.String())
		}
		return
	}

	if result.Changed {
		pid := uuid.UUID(paymentID)
		metadata := map[string]any{
			"invoiceId":     result.InvoiceID,
			"appliedAmount": result.Applied.String(),
			"invoiceStatus": result.InvoiceStatus,
		}
		if result.PreviousInvoiceID != nil {
			metadata["previousInvoiceId"] = *result.PreviousInvoiceID
		}
		s.audit(r, actor, actor.TenantID, "payments.link", matching.PaymentsEntity, &pid, metadata)
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}
