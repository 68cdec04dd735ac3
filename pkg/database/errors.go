package database

import "errors"

var (
	// ErrNotFound is returned when a session or record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when inserting a duplicate session ID.
	ErrAlreadyExists = errors.New("record already exists")
)
