// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import (
	"errors"
	"fmt"
)

// Error codes for local storage failures.
const (
	CodeQueryFailed         = "QUERY_FAILED"
	CodeSaveFailed          = "SAVE_FAILED"
	CodeBulkOperationFailed = "BULK_OPERATION_FAILED"
	CodeRecordNotFound      = "RECORD_NOT_FOUND"
	CodeIntegrityError      = "INTEGRITY_ERROR"
)

// DatabaseError wraps any storage-layer failure with the table/service it
// came from, the operation that failed, and a small context bag for
// diagnostics. Raw driver errors never leak past this package.
type DatabaseError struct {
	Code      string
	Service   string
	Operation string
	Context   map[string]string
	Cause     error
}

func (e *DatabaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s.%s: %v", e.Code, e.Service, e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s: %s.%s", e.Code, e.Service, e.Operation)
}

func (e *DatabaseError) Unwrap() error { return e.Cause }

// IsNotFound reports whether err is (or wraps) a DatabaseError with
// CodeRecordNotFound.
func IsNotFound(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr) && dbErr.Code == CodeRecordNotFound
}

// dbError builds a DatabaseError. Context key/value pairs are passed as
// alternating strings; an odd trailing key is ignored.
func dbError(code, service, operation string, cause error, kv ...string) *DatabaseError {
	var bag map[string]string
	if len(kv) >= 2 {
		bag = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			bag[kv[i]] = kv[i+1]
		}
	}
	return &DatabaseError{
		Code:      code,
		Service:   service,
		Operation: operation,
		Context:   bag,
		Cause:     cause,
	}
}
