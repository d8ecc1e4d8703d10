package repository

import "errors"

var (
	ErrDuplicatePayment  = errors.New("payment already recorded")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrInvalidStatus     = errors.New("invalid payment status")
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrPlanNotFound      = errors.New("plan not found")
)
