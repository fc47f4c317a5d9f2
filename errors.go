package marley

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidInput is matched by every *InvalidInputError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPostNotFound is returned when no article carries the requested id.
	ErrPostNotFound = errors.New("post not found")
	// ErrCacheMiss is returned by a Store that holds no value for a key.
	ErrCacheMiss = errors.New("cache miss")
)

// InvalidInputError reports a text field a document does not carry.
type InvalidInputError struct {
	DocumentID string
	Field      string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("document %q has no field %q", e.DocumentID, e.Field)
}

// Is makes errors.Is(err, ErrInvalidInput) hold.
func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// ValidationError lists the fields of a comment that failed validation.
type ValidationError struct {
	Fields map[string]string // field -> failed rule
	err    error
}

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields, err: err}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, tag := range e.Fields {
		parts = append(parts, f+" ("+tag+")")
	}
	sort.Strings(parts)
	return "invalid comment: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return e.err }

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	_, ok := e.Fields[field]
	return ok
}

// cacheError wraps a failing cache backend. It is logged, never returned.
type cacheError struct {
	op, key string
	err     error
}

func (e *cacheError) Error() string {
	return "cache unavailable: " + e.op + " " + e.key + ": " + e.err.Error()
}

func (e *cacheError) Unwrap() error { return e.err }
