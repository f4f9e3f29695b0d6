package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrAlreadyProcessed    = errors.New("already processed")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStalePrice          = errors.New("price sample too old")
	ErrBettingClosed       = errors.New("betting window closed")
	ErrPoolPaused          = errors.New("pool paused")
	ErrNotOwner            = errors.New("not the owner")
	ErrNotActive           = errors.New("position no longer active")
	ErrNotPending          = errors.New("order no longer pending")
	ErrMarketClosed        = errors.New("market closed")
	ErrInvalidOption       = errors.New("option not offered by market")
	ErrRateLimited         = errors.New("rate limited")
	ErrLockHeld            = errors.New("lock already held")
	ErrContextDone         = errors.New("context cancelled")
)
