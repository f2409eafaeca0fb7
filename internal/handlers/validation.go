package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
)

// ValidationErrorResponse represents a validation error with field-level details
type ValidationErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Global validator instance (reused across all handlers)
var validate = validator.New()

// ValidateRequest validates a request struct using go-playground/validator
// Returns a user-friendly error message if validation fails
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		// Extract validation errors and format them
		if ve, ok := err.(validator.ValidationErrors); ok {
			var errors []ValidationErrorResponse
			for _, fieldError := range ve {
				errors = append(errors, ValidationErrorResponse{
					Field:   fieldError.Field(),
					Message: formatValidationError(fieldError),
				})
			}
			// Return first error for simple handling (can be extended for multiple errors)
			if len(errors) > 0 {
				return fmt.Errorf("validation failed: %s: %s",
					errors[0].Field,
					errors[0].Message)
			}
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// maxBodyBytes caps request bodies decoded by handlers
const maxBodyBytes = 1 << 16

// decodeRequest reads a JSON body into dst and validates it. It writes a 400
// and returns false on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// epochMillis renders t as Unix milliseconds, or nil for the zero time
func epochMillis(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
