package dashboard

import "errors"

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrInvalidRange    = errors.New("invalid date range")
)
