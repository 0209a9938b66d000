// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package app

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationError means an input failed domain rules before any I/O was
// attempted: nothing was written, locally or remotely.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// checkInput runs struct-tag validation and converts the first failure into
// a ValidationError.
func (s *Service) checkInput(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return &ValidationError{Field: first.Field(), Reason: first.Tag()}
	}
	return &ValidationError{Field: "input", Reason: err.Error()}
}
