package orderbook

import "errors"

// Order and risk errors. None of them is fatal to the book; a rejected call
// leaves all state untouched.
var (
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidSize        = errors.New("invalid size")
	ErrInvalidLeverage    = errors.New("invalid leverage")
	ErrExceedsMaxLeverage = errors.New("exceeds max leverage")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrOrderNotFound      = errors.New("order not found")
	ErrPositionNotFound   = errors.New("position not found")
	ErrBookInitialized    = errors.New("book already initialized")

	// Reserved for IOC/FOK semantics; matching truncates instead of failing.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// Reserved; liquidation currently removes positions outright.
	ErrLiquidation = errors.New("liquidation error")
)
