package gamification

import "errors"

// ErrInvalidInput rejects a state change before anything is applied.
var ErrInvalidInput = errors.New("invalid input")
