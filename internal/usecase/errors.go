package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrConflict              = errors.New("conflict")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	ErrProfileReadFailed  = errors.New("profile read failed")
	ErrProfileWriteFailed = errors.New("profile write failed")
	ErrProfileNotEchoed   = errors.New("profile insert accepted but no data returned")
)
