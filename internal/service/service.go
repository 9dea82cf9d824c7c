package service

import "errors"

// Sentinel errors mapped to HTTP status codes by the handlers.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrRunNotFinished  = errors.New("scan run has not completed")
	ErrServiceStopping = errors.New("scan service is shutting down")
)
