package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity     = errors.New("quantity must be between 1 and 1000000")
	ErrInvalidDiscount     = errors.New("invalid discount")
	ErrEmptyBill           = errors.New("bill has no line items")
	ErrExceedsSoldQuantity = errors.New("return quantity exceeds sold quantity")
	ErrNotRefundable       = errors.New("transaction is not refundable")
	ErrAlreadyRefunded     = fmt.Errorf("%w: already fully refunded", ErrNotRefundable)
	ErrEmptyReturn         = errors.New("return has no lines")
	ErrInvalidTransition   = errors.New("invalid bill state transition")
)
