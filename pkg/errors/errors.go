package apperrors

import "errors"

// Computation errors
var (
	ErrInvalidInterval = errors.New("invalid funding interval")
	ErrInvalidPair     = errors.New("long and short exchange must differ")
	ErrDataUnavailable = errors.New("symbol not supported on this exchange pair")
	ErrInvalidRequest  = errors.New("invalid request")
)

// Standardized Exchange Errors
var (
	ErrExchangeUnavailable = errors.New("exchange unavailable")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrNetwork             = errors.New("network error")
	ErrInvalidSymbol       = errors.New("invalid symbol")
	ErrExchangeMaintenance = errors.New("exchange maintenance")
)
