package utils

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorNotAuthorized is returned when an ordinary user attempts an
// operation reserved for office management (e.g. mutating budget fields
// on an accepted project, or running the YearWeek backfill).
var ErrorNotAuthorized = errors.New("not authorized")

// ValidationError is rejected synchronously before persistence and names
// the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDuplicateKeyError reports whether err is a MySQL duplicate-entry error
// (code 1062). Unique indexes backstop slug and (year, week) uniqueness;
// races surface here and are mapped back to validation errors.
func IsDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
