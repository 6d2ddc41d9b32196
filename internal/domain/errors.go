package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnavailable        = errors.New("unavailable")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidOrder       = errors.New("invalid order parameters")
	ErrMarketClosed       = errors.New("market closed")
	ErrInsufficientMargin = errors.New("insufficient free margin")
	ErrLockHeld           = errors.New("lock already held")
	ErrAlreadyReserved    = errors.New("symbol already reserved")
	ErrCapacityFull       = errors.New("capacity full")
	ErrKillSwitch         = errors.New("kill switch active")
	ErrNotRunning         = errors.New("engine not running")
	ErrUnknownSymbol      = errors.New("unknown symbol")
)
