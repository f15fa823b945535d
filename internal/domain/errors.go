package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidPrediction  = errors.New("invalid prediction")
	ErrAlreadySettled     = errors.New("contract already settled")
	ErrNotSettleable      = errors.New("contract not yet settleable")
	ErrConnectionLost     = errors.New("connection lost")
	ErrNotConnected       = errors.New("gateway not connected")
	ErrSessionNotReady    = errors.New("session not ready")
	ErrCallTimeout        = errors.New("call deadline exceeded")
	ErrSignerUnconfigured = errors.New("signer not configured")
	ErrOracleUnavailable  = errors.New("price oracle unavailable")
)
