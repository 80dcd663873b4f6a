package expense

import "errors"

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrCategoryExists   = errors.New("category slug already used")
	ErrInvalidFilter    = errors.New("invalid filter")
)
