package storage

import "errors"

// Common storage errors
var (
	// ErrBoardNotFound indicates that the board has no operations yet
	ErrBoardNotFound = errors.New("board not found")

	// ErrInvalidOperation indicates that an operation cannot be stored
	ErrInvalidOperation = errors.New("invalid operation")
)
