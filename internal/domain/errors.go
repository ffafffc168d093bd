package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrEmptyGroup        = errors.New("empty strategy group")
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrAmbiguousStrategy = errors.New("ambiguous strategy")
	ErrInvalidSample     = errors.New("invalid sample")
	ErrLockHeld          = errors.New("lock already held")
	ErrDuplicatePair     = errors.New("duplicated task pair")
)
