package models

import "errors"

// ErrInvalidOperation indicates that an operation was constructed with missing or invalid fields
var ErrInvalidOperation = errors.New("invalid operation")
