package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidLeverage     = errors.New("leverage out of range")
	ErrInsufficientMargin  = errors.New("insufficient margin")
	ErrInsufficientHistory = errors.New("insufficient candle history")
	ErrEngineRunning       = errors.New("engine already running")
	ErrEngineStopped       = errors.New("engine not running")
	ErrNoPosition          = errors.New("no open position")
	ErrRateLimited         = errors.New("rate limited")
	ErrCircuitOpen         = errors.New("circuit breaker open")
	ErrLockHeld            = errors.New("lock already held")
	ErrWSDisconnect        = errors.New("websocket disconnected")
)
