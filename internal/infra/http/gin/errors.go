package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"staybook/internal/app/middleware"
	"staybook/internal/app/policies"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/cancellation"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/pricing"
	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/concurrency"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
)

type errorClass struct {
	status int
	code   string
	errs   []error
}

var errorClasses = []errorClass{
	{http.StatusNotFound, "NOT_FOUND", []error{
		inventory.ErrItemNotFound, reservation.ErrNotFound, payment.ErrNotFound,
		payment.ErrAccountNotFound, availability.ErrClaimNotFound,
	}},
	{http.StatusForbidden, "NOT_OWNER", []error{inventory.ErrNotOwner, reservation.ErrNotOwner}},
	{http.StatusGone, "EXPIRED", []error{reservation.ErrExpired}},
	{http.StatusConflict, "UNAVAILABLE", []error{availability.ErrConflict, availability.ErrCapacityBelowClaimed}},
	{http.StatusConflict, "INVALID_TRANSITION", []error{
		reservation.ErrInvalidTransition, payment.ErrInvalidTransition,
		payment.ErrPaymentInProgress, payment.ErrRefundsClosed,
	}},
	{http.StatusConflict, "CONCURRENT_UPDATE", []error{concurrency.ErrConcurrentUpdate, middleware.ErrKeyReused}},
	{http.StatusUnprocessableEntity, "EXCEEDS_BALANCE", []error{payment.ErrExceedsBalance}},
	{http.StatusUnprocessableEntity, "EXCEEDS_REFUND_CAP", []error{payment.ErrExceedsRefundCap}},
	{http.StatusServiceUnavailable, "BUSY", []error{policies.ErrLockTimeout}},
	{http.StatusBadRequest, "INVALID_INPUT", []error{
		middleware.ErrInvalidInput,
		money.ErrInvalidCurrency, money.ErrCurrencyMismatch, money.ErrNegativeAmount,
		daterange.ErrInvalidRange, daterange.ErrInvalidDay,
		inventory.ErrUnknownType, inventory.ErrInvalidItem, inventory.ErrPartySize, inventory.ErrStayLength,
		inventory.ErrSlotRequired, inventory.ErrSlotNotAllowed, inventory.ErrInvalidSlot,
		reservation.ErrInvalidParty, reservation.ErrGuestRequired, reservation.ErrInvalidTotal,
		pricing.ErrCurrencyUnset, pricing.ErrNoUnits, pricing.ErrInvalidParty, pricing.ErrInvalidDiscount,
		pricing.ErrNegativeRate,
		availability.ErrInvalidUnits, availability.ErrEmptySelector, availability.ErrSelectorTooLarge,
		cancellation.ErrInvalidPolicy,
		payment.ErrInvalidAmount, payment.ErrRefundKindMismatch,
	}},
}

// classify maps a bus error onto an HTTP status and a stable code.
func classify(err error) (int, string) {
	for _, class := range errorClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.status, class.code
			}
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

type base struct {
	Logger *slog.Logger
}

func (b base) handleError(c *gin.Context, err error) {
	status, code := classify(err)
	b.respondWithError(c, status, code, err)
}

func (b base) respondWithError(c *gin.Context, status int, code string, err error) {
	if b.Logger != nil {
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		b.Logger.Log(c.Request.Context(), level, "request failed", "status", status, "code", code, "error", err, "path", c.FullPath())
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func (b base) badRequest(c *gin.Context, err error) {
	b.respondWithError(c, http.StatusBadRequest, "INVALID_INPUT", err)
}
