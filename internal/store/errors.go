package store

import "errors"

var (
	ErrInvalidState        = errors.New("invalid transaction state")
	ErrNoTransaction       = errors.New("no transaction available")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrItemNotFound        = errors.New("item not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrTherapistNotFound   = errors.New("therapist not found")
	ErrCashierNotFound     = errors.New("cashier not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrSessionNotFound     = errors.New("session not found")
)
