package models

import "errors"

var (
	errEmptyLegalName   = errors.New("tenant legal name cannot be empty")
	errLegalNameTooLong = errors.New("tenant legal name must be 128 characters or less")
)
