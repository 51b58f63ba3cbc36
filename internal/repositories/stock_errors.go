package repositories

import "fmt"

// StockErrorCode enumerates stock mutation failures.
type StockErrorCode string

const (
	// StockErrorInsufficient indicates the requested quantity exceeds the product's stock.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorNegativeTarget indicates a write would leave stock below zero.
	StockErrorNegativeTarget StockErrorCode = "stock_negative_target"
)

// StockError is returned when a stock write is rejected by the store.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Available int
	Requested int
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s for product %s: available %d, requested %d", e.Code, e.ProductID, e.Available, e.Requested)
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, productID string, available, requested int) *StockError {
	return &StockError{
		Code:      code,
		ProductID: productID,
		Available: available,
		Requested: requested,
	}
}
