package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrUnauthenticated        = errors.New("authentication required")
	ErrEmptyCart              = errors.New("cart is empty, nothing to checkout")
	ErrInvalidQuantity        = errors.New("quantity must be between 1 and 99")
	ErrInvalidContact         = errors.New("invalid contact details")
	ErrIllegalTransition      = errors.New("illegal transition of checkout state")
	ErrPaymentProvider        = errors.New("payment provider error")
	ErrPaymentNotConfirmed    = errors.New("payment was not confirmed")
	ErrOrderPaymentMismatch   = errors.New("order total differs from charged amount")
	ErrMaterializationFailure = errors.New("order could not be saved after payment")
	ErrDuplicatePayment       = errors.New("order for this payment already exists")
)
