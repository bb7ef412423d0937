package service

import "errors"

var (
	ErrInvalidThreshold = errors.New("threshold must be a positive integer")
	ErrMissingJWTSecret = errors.New("entry token signing secret is not configured")
)
