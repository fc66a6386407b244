package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	domain "github.com/cellforge/api/internal/domain"
	"github.com/cellforge/api/internal/payments"
	"github.com/cellforge/api/internal/repositories"
)

// Post-payment failure reasons recorded on the terminal order.
const (
	FailureReasonStockConflict  = "STOCK_CONFLICT"
	FailureReasonInvalidAddress = "INVALID_ADDRESS"
)

var (
	// ErrFulfillmentInvalidInput indicates a blank or malformed session id.
	ErrFulfillmentInvalidInput = errors.New("fulfillment: invalid input")
	// ErrFulfillmentUnavailable indicates the PSP or datastore could not be reached.
	ErrFulfillmentUnavailable = errors.New("fulfillment: unavailable")
)

// fulfillmentPaymentManager abstracts payments.Manager for easier testing.
type fulfillmentPaymentManager interface {
	RetrieveSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RetrieveSessionRequest) (payments.SessionDetails, error)
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
}

// FulfillmentServiceDeps wires the dependencies required by the fulfillment service.
type FulfillmentServiceDeps struct {
	Payments       fulfillmentPaymentManager
	Products       repositories.ProductRepository
	Batches        repositories.BatchRepository
	Orders         repositories.OrderRepository
	Vouchers       repositories.VoucherRepository
	AbandonedCarts repositories.AbandonedCartRepository
	Notifications  NotificationPublisher
	Shipping       *ShippingPolicy
	Clock          func() time.Time
	Logger         Logger
	OrderID        func() string
	RefundKey      func() string
}

type fulfillmentService struct {
	payments       fulfillmentPaymentManager
	products       repositories.ProductRepository
	batches        repositories.BatchRepository
	orders         repositories.OrderRepository
	vouchers       repositories.VoucherRepository
	abandonedCarts repositories.AbandonedCartRepository
	notifications  NotificationPublisher
	shipping       *ShippingPolicy
	now            func() time.Time
	logger         Logger
	orderID        func() string
	refundKey      func() string
}

// NewFulfillmentService constructs a FulfillmentService validating required dependencies.
func NewFulfillmentService(deps FulfillmentServiceDeps) (FulfillmentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("fulfillment service: payment manager is required")
	}
	if deps.Products == nil {
		return nil, errors.New("fulfillment service: product repository is required")
	}
	if deps.Batches == nil {
		return nil, errors.New("fulfillment service: batch repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("fulfillment service: order repository is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("fulfillment service: shipping policy is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	orderID := deps.OrderID
	if orderID == nil {
		orderID = func() string { return ulid.Make().String() }
	}
	refundKey := deps.RefundKey
	if refundKey == nil {
		refundKey = uuid.NewString
	}

	return &fulfillmentService{
		payments:       deps.Payments,
		products:       deps.Products,
		batches:        deps.Batches,
		orders:         deps.Orders,
		vouchers:       deps.Vouchers,
		abandonedCarts: deps.AbandonedCarts,
		notifications:  deps.Notifications,
		shipping:       deps.Shipping,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		orderID:   orderID,
		refundKey: refundKey,
	}, nil
}

// Confirm runs the post-payment pipeline for one session: idempotency check,
// authoritative session retrieval, FIFO stock allocation under optimistic
// concurrency, mainland address re-validation, then order materialization.
// Post-payment failures compensate with a refund instead of surfacing errors;
// the customer was already charged.
func (s *fulfillmentService) Confirm(ctx context.Context, sessionID string) (ConfirmResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ConfirmResult{}, fmt.Errorf("%w: session id is required", ErrFulfillmentInvalidInput)
	}

	if existing, err := s.orders.FindBySessionID(ctx, sessionID); err == nil {
		s.logger(ctx, "fulfillment.session_already_materialized", map[string]any{
			"sessionId": sessionID,
			"orderId":   existing.ID,
		})
		return ConfirmResult{Order: existing, AlreadyExists: true}, nil
	} else if !repositories.IsNotFound(err) {
		return ConfirmResult{}, fmt.Errorf("%w: %v", ErrFulfillmentUnavailable, err)
	}

	details, err := s.payments.RetrieveSession(ctx, payments.PaymentContext{}, payments.RetrieveSessionRequest{SessionID: sessionID})
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("%w: %v", ErrFulfillmentUnavailable, err)
	}

	if failed, reason, err := s.allocateStock(ctx, details); err != nil {
		return ConfirmResult{}, err
	} else if failed {
		return s.failWithRefund(ctx, details, domain.OrderStatusRefundedNoStock, TemplateRefundNoStock, reason)
	}

	shippingAddr := sessionAddress(details)
	if err := s.shipping.ValidateMainland(shippingAddr); err != nil {
		s.logger(ctx, "fulfillment.address_rejected", map[string]any{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
		return s.failWithRefund(ctx, details, domain.OrderStatusRefundedInvalidAddress, TemplateRefundInvalidAddress, FailureReasonInvalidAddress)
	}

	status := domain.OrderStatusPending
	if details.Paid() {
		status = domain.OrderStatusPaid
	}
	order, alreadyExists, err := s.insertOrder(ctx, details, status, "")
	if err != nil {
		return ConfirmResult{}, err
	}
	if alreadyExists {
		return ConfirmResult{Order: order, AlreadyExists: true}, nil
	}

	s.attributeVoucher(ctx, details)
	s.convertAbandonedCarts(ctx, order.Email)
	s.notify(ctx, TemplateOrderConfirmation, order, "")

	s.logger(ctx, "fulfillment.order_materialized", map[string]any{
		"sessionId": sessionID,
		"orderId":   order.ID,
		"status":    string(order.Status),
		"total":     order.TotalMinor,
	})
	return ConfirmResult{Order: order}, nil
}

// allocateStock satisfies each line from the product's live batches oldest
// first. A line whose SKU has no catalog linkage skips inventory tracking.
// Insufficient total stock or a lost compare-and-swap race fails the whole
// order immediately; a lost race has already demonstrated contention.
func (s *fulfillmentService) allocateStock(ctx context.Context, details payments.SessionDetails) (bool, string, error) {
	now := s.now()
	for _, item := range details.Items {
		sku := strings.TrimSpace(item.SKU)
		if sku == "" || item.Quantity <= 0 {
			continue
		}

		product, err := s.products.FindByID(ctx, sku)
		if err != nil {
			if repositories.IsNotFound(err) {
				s.logger(ctx, "fulfillment.line_without_catalog_linkage", map[string]any{
					"sessionId": details.ID,
					"sku":       sku,
				})
				continue
			}
			return false, "", fmt.Errorf("%w: %v", ErrFulfillmentUnavailable, err)
		}

		batches, err := s.batches.ListAllocatable(ctx, product.ID)
		if err != nil {
			return false, "", fmt.Errorf("%w: %v", ErrFulfillmentUnavailable, err)
		}

		available := 0
		for _, batch := range batches {
			available += batch.StockQuantity
		}
		if available < item.Quantity {
			s.logger(ctx, "fulfillment.insufficient_stock", map[string]any{
				"sessionId": details.ID,
				"productId": product.ID,
				"needed":    item.Quantity,
				"available": available,
			})
			return true, FailureReasonStockConflict, nil
		}

		need := item.Quantity
		for _, batch := range batches {
			if need == 0 {
				break
			}
			take := batch.StockQuantity
			if take > need {
				take = need
			}
			err := s.batches.DecrementStock(ctx, batch.ID, batch.StockQuantity, batch.StockQuantity-take, now)
			if err != nil {
				if repositories.IsConflict(err) {
					s.logger(ctx, "fulfillment.stock_cas_lost", map[string]any{
						"sessionId": details.ID,
						"batchId":   batch.ID,
					})
					return true, FailureReasonStockConflict, nil
				}
				return false, "", fmt.Errorf("%w: %v", ErrFulfillmentUnavailable, err)
			}
			need -= take
		}
		if need > 0 {
			return true, FailureReasonStockConflict, nil
		}
	}
	return false, "", nil
}

// failWithRefund compensates a captured payment: refund, notify, and record a
// terminal order so the failure is never silently dropped.
func (s *fulfillmentService) failWithRefund(ctx context.Context, details payments.SessionDetails, status domain.OrderStatus, template string, reason string) (ConfirmResult, error) {
	if details.IntentID != "" {
		_, err := s.payments.Refund(ctx, payments.PaymentContext{Currency: details.Currency}, payments.RefundRequest{
			IntentID:       details.IntentID,
			IdempotencyKey: s.refundKey(),
			Metadata: map[string]string{
				"session_id": details.ID,
				"reason":     reason,
			},
		})
		if err != nil {
			// The terminal order row still records the failure for manual
			// follow-up when the refund call itself fails.
			s.logger(ctx, "fulfillment.refund_failed", map[string]any{
				"sessionId": details.ID,
				"intentId":  details.IntentID,
				"error":     err.Error(),
			})
		}
	}

	order, alreadyExists, err := s.insertOrder(ctx, details, status, reason)
	if err != nil {
		return ConfirmResult{}, err
	}
	if alreadyExists {
		return ConfirmResult{Order: order, AlreadyExists: true}, nil
	}

	s.notify(ctx, template, order, reason)

	s.logger(ctx, "fulfillment.order_refunded", map[string]any{
		"sessionId": details.ID,
		"orderId":   order.ID,
		"status":    string(status),
		"reason":    reason,
	})
	return ConfirmResult{Order: order, Refunded: true, FailureReason: reason}, nil
}

// insertOrder materializes the order from the processor's authoritative
// session record. A uniqueness violation on the session id means a concurrent
// trigger won; fetch and return that row instead of erroring.
func (s *fulfillmentService) insertOrder(ctx context.Context, details payments.SessionDetails, status domain.OrderStatus, failureReason string) (domain.Order, bool, error) {
	now := s.now()
	metadata := map[string]any{}
	if code := strings.TrimSpace(details.Metadata["voucher_code"]); code != "" {
		metadata["voucher_code"] = code
	}
	if details.IntentID != "" {
		metadata["payment_intent"] = details.IntentID
	}
	if failureReason != "" {
		metadata["failure_reason"] = failureReason
	}

	lines := make([]domain.OrderLine, 0, len(details.Items))
	for _, item := range details.Items {
		lines = append(lines, domain.OrderLine{
			ProductID:  item.SKU,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitAmount: item.UnitAmount,
		})
	}

	order := domain.Order{
		ID:         s.orderID(),
		SessionID:  details.ID,
		Email:      strings.ToLower(strings.TrimSpace(details.CustomerEmail)),
		Status:     status,
		Currency:   details.Currency,
		TotalMinor: details.AmountTotal,
		Lines:      lines,
		Shipping:   sessionAddress(details),
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		if repositories.IsConflict(err) {
			existing, fetchErr := s.orders.FindBySessionID(ctx, details.ID)
			if fetchErr != nil {
				return domain.Order{}, false, fmt.Errorf("%w: %v", ErrFulfillmentUnavailable, fetchErr)
			}
			return existing, true, nil
		}
		return domain.Order{}, false, fmt.Errorf("%w: %v", ErrFulfillmentUnavailable, err)
	}
	return order, false, nil
}

func (s *fulfillmentService) attributeVoucher(ctx context.Context, details payments.SessionDetails) {
	code := strings.TrimSpace(details.Metadata["voucher_code"])
	if code == "" || s.vouchers == nil {
		return
	}
	if err := s.vouchers.IncrementUsage(ctx, code, s.now()); err != nil {
		s.logger(ctx, "fulfillment.voucher_attribution_failed", map[string]any{
			"sessionId": details.ID,
			"voucher":   code,
			"error":     err.Error(),
		})
	}
}

func (s *fulfillmentService) convertAbandonedCarts(ctx context.Context, email string) {
	if s.abandonedCarts == nil || email == "" {
		return
	}
	converted, err := s.abandonedCarts.MarkConvertedByEmail(ctx, email, s.now())
	if err != nil {
		s.logger(ctx, "fulfillment.cart_conversion_failed", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return
	}
	if converted > 0 {
		s.logger(ctx, "fulfillment.carts_converted", map[string]any{
			"email": email,
			"count": converted,
		})
	}
}

// notify dispatches a customer notification; failures are logged, never
// propagated, because an order is valid without a successful email.
func (s *fulfillmentService) notify(ctx context.Context, template string, order domain.Order, reason string) {
	if s.notifications == nil || order.Email == "" {
		return
	}
	data := map[string]string{
		"order_id": order.ID,
		"total":    fmt.Sprintf("%d", order.TotalMinor),
		"currency": order.Currency,
	}
	if reason != "" {
		data["reason"] = reason
	}
	if _, err := s.notifications.PublishNotification(ctx, NotificationMessage{
		Template:  template,
		Recipient: order.Email,
		OrderID:   order.ID,
		SessionID: order.SessionID,
		QueuedAt:  s.now(),
		Data:      data,
	}); err != nil {
		s.logger(ctx, "fulfillment.notification_failed", map[string]any{
			"orderId":  order.ID,
			"template": template,
			"error":    err.Error(),
		})
	}
}

func sessionAddress(details payments.SessionDetails) domain.Address {
	return domain.Address{
		Line1:    details.Shipping.Line1,
		Line2:    details.Shipping.Line2,
		City:     details.Shipping.City,
		Postcode: details.Shipping.Postcode,
		Country:  details.Shipping.Country,
	}
}
