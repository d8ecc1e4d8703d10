package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnshop/internal/billing"
	"vpnshop/internal/models"
	"vpnshop/internal/repository"
)

// PaymentLedger is the read side of the payment ledger.
type PaymentLedger interface {
	FindByID(ctx context.Context, paymentID string) (*models.PaymentRecord, error)
	FindAll(ctx context.Context) ([]models.PaymentRecord, error)
	FindByStatus(ctx context.Context, status models.PaymentStatus) ([]models.PaymentRecord, error)
	FindByUserID(ctx context.Context, userID int64) ([]models.PaymentRecord, error)
}

// PaymentCanceller stops a polled payment.
type PaymentCanceller interface {
	Cancel(ctx context.Context, paymentID string) error
	Sessions() []models.PaymentSession
}

// PaymentHandler serves the admin payment endpoints.
type PaymentHandler struct {
	ledger   PaymentLedger
	payments PaymentCanceller
	logger   *zap.Logger
}

func NewPaymentHandler(ledger PaymentLedger, payments PaymentCanceller, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{ledger: ledger, payments: payments, logger: logger}
}

// List returns ledger records, newest first.
// GET /api/payments?status=&user_id=&page=&limit=
func (h *PaymentHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	page, limit := pageParams(c)

	var (
		records []models.PaymentRecord
		err     error
	)
	status := c.QueryParam("status")
	userID := c.QueryParam("user_id")
	switch {
	case status != "":
		st, perr := models.ParsePaymentStatus(status)
		if perr != nil {
			return errorResponse(c, http.StatusBadRequest, perr.Error())
		}
		records, err = h.ledger.FindByStatus(ctx, st)
	case userID != "":
		id, perr := strconv.ParseInt(userID, 10, 64)
		if perr != nil {
			return errorResponse(c, http.StatusBadRequest, "user_id must be a number")
		}
		records, err = h.ledger.FindByUserID(ctx, id)
	default:
		records, err = h.ledger.FindAll(ctx)
	}
	if err != nil {
		h.logger.Error("Failed to list payments", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve payments")
	}

	newestFirst(records)
	return successResponse(c, "Successful", paginate(records, page, limit))
}

// Get returns one record with its status history.
// GET /api/payments/:id
func (h *PaymentHandler) Get(c echo.Context) error {
	rec, err := h.ledger.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return errorResponse(c, http.StatusNotFound, "Payment not found")
		}
		h.logger.Error("Failed to load payment", zap.String("payment_id", c.Param("id")), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve payment")
	}
	return successResponse(c, "Successful", rec)
}

// Sessions lists payments currently being polled.
// GET /api/payments/sessions
func (h *PaymentHandler) Sessions(c echo.Context) error {
	sessions := h.payments.Sessions()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })
	return successResponse(c, "Successful", sessions)
}

// Cancel stops polling a payment and marks it expired.
// POST /api/payments/:id/cancel
func (h *PaymentHandler) Cancel(c echo.Context) error {
	id := c.Param("id")
	err := h.payments.Cancel(c.Request().Context(), id)
	switch {
	case err == nil:
		h.logger.Info("Payment cancelled via API", zap.String("payment_id", id))
		return successResponse(c, "Payment cancelled", nil)
	case errors.Is(err, billing.ErrSessionNotFound):
		return errorResponse(c, http.StatusNotFound, "Payment is not being polled")
	case errors.Is(err, repository.ErrInvalidTransition):
		return errorResponse(c, http.StatusConflict, "Payment already settled")
	default:
		h.logger.Error("Failed to cancel payment", zap.String("payment_id", id), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to cancel payment")
	}
}

func newestFirst(records []models.PaymentRecord) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
}
