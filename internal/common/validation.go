package common

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/timetable-extractor/constants"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// Validator provides validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Error returns a combined error wrapping ErrValidation, or nil.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, v.ErrorMessage())
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value any) *ValidationError

// Required - Common validation rules
func Required(fieldName string, value any) *ValidationError {
	if value == nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}
	return nil
}

// MaxLength rejects strings longer than max runes.
func MaxLength(max int) ValidationRule {
	return func(fieldName string, value any) *ValidationError {
		str, ok := value.(string)
		if !ok {
			return nil
		}
		if utf8.RuneCountInString(str) > max {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("must be at most %d characters", max),
			}
		}
		return nil
	}
}

func UUID(fieldName string, value any) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
	}
	if _, err := uuid.Parse(str); err != nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a valid UUID"}
	}
	return nil
}

// FileExists requires an existing regular file at the given path.
func FileExists(fieldName string, value any) *ValidationError {
	str, ok := value.(string)
	if !ok || str == "" {
		return nil
	}
	st, err := os.Stat(str)
	if err != nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "file does not exist"}
	}
	if st.IsDir() {
		return &ValidationError{Field: fieldName, Value: value, Message: "is a directory"}
	}
	return nil
}

// SupportedMediaType accepts media class names and MIME types the pipeline can route.
func SupportedMediaType(fieldName string, value any) *ValidationError {
	str, _ := value.(string)
	if _, ok := constants.ParseMediaType(str); !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "unsupported media type"}
	}
	return nil
}

var reAcademicYear = regexp.MustCompile(`^\d{4}-\d{4}$|^\d{4}/\d{2}$`)

// AcademicYear allows empty values, otherwise YYYY-YYYY or YYYY/YY.
func AcademicYear(fieldName string, value any) *ValidationError {
	str, _ := value.(string)
	if str == "" || reAcademicYear.MatchString(str) {
		return nil
	}
	return &ValidationError{Field: fieldName, Value: value, Message: "must match YYYY-YYYY or YYYY/YY"}
}

// IsAcademicYear reports whether s is a well-formed academic year.
func IsAcademicYear(s string) bool {
	return reAcademicYear.MatchString(s)
}

// ValidateAndReturnError validates and returns InvalidArgumentError if validation fails
func ValidateAndReturnError(validator *Validator) error {
	if validator.HasErrors() {
		return InvalidArgumentError(validator.ErrorMessage())
	}
	return nil
}
