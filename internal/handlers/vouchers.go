package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/platform/httpx"
	"github.com/cellforge/api/internal/services"
)

const maxVoucherRequestBody = 4 * 1024

// VoucherHandlers exposes the stateless voucher validation endpoint.
type VoucherHandlers struct {
	vouchers services.VoucherService
	limiter  rateLimiter
}

// NewVoucherHandlers constructs voucher handlers with a per-client rate
// limit guarding against code enumeration.
func NewVoucherHandlers(vouchers services.VoucherService) *VoucherHandlers {
	return &VoucherHandlers{
		vouchers: vouchers,
		limiter:  newSimpleRateLimiter(30, time.Minute, nil),
	}
}

// Routes registers voucher endpoints under the provided router.
func (h *VoucherHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/validate", h.validate)
}

type voucherValidateRequest struct {
	Code string `json:"code"`
}

// voucherValidateResponse always carries HTTP 200; an unusable code is a
// business outcome, not a transport failure.
type voucherValidateResponse struct {
	Valid           bool     `json:"valid"`
	Type            string   `json:"type,omitempty"`
	Value           int64    `json:"value,omitempty"`
	MinSpend        int64    `json:"min_spend,omitempty"`
	ProductIDs      []string `json:"product_ids,omitempty"`
	MaxUsagePerCart int      `json:"max_usage_per_cart,omitempty"`
	IsFreeShipping  bool     `json:"is_free_shipping"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

func (h *VoucherHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_unavailable", "voucher service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many validation attempts", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxVoucherRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req voucherValidateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	result, err := h.vouchers.Check(ctx, req.Code)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_unavailable", "voucher lookup failed", http.StatusServiceUnavailable))
		return
	}

	if !result.Valid {
		writeJSONResponse(w, http.StatusOK, voucherValidateResponse{
			Valid:        false,
			ErrorMessage: rejectionMessage(result.Reason),
		})
		return
	}

	voucher := result.Voucher
	writeJSONResponse(w, http.StatusOK, voucherValidateResponse{
		Valid:           true,
		Type:            string(result.Type),
		Value:           result.Value,
		MinSpend:        voucher.MinSpend,
		ProductIDs:      voucher.ProductIDs,
		MaxUsagePerCart: voucher.MaxUsagePerCart,
		IsFreeShipping:  voucher.FreeShipping,
	})
}

func rejectionMessage(reason domain.VoucherRejection) string {
	switch reason {
	case domain.VoucherRejectionCodeNotFound:
		return "Voucher code not found"
	case domain.VoucherRejectionDisabled:
		return "This voucher is no longer active"
	case domain.VoucherRejectionPending:
		return "This voucher is not active yet"
	case domain.VoucherRejectionExpired:
		return "This voucher has expired"
	case domain.VoucherRejectionUseLimitReached:
		return "This voucher has reached its usage limit"
	case domain.VoucherRejectionMinSpendNotMet:
		return "The cart does not meet the voucher minimum spend"
	case domain.VoucherRejectionNotEligible:
		return "This voucher cannot be used on this order"
	default:
		return "Voucher cannot be applied"
	}
}
