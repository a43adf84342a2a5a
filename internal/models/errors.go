package models

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotParticipant    = errors.New("user is not a participant")
	ErrForbidden         = errors.New("operation not permitted")
	ErrMessageNotFound   = errors.New("message not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyResolved   = errors.New("dispute already resolved")
	ErrConflict          = errors.New("concurrent modification, please retry")
)
