package core

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"adpilot/internal/types"
)

// Validator wraps go-playground/validator so handlers can validate request
// structs and return field-level errors in the standard error envelope.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates a request struct against its `validate` tags.
// On failure it returns a *types.AppError with code
// "validation_missing_required_field" and a details map keyed by field name,
// so clients see every violation in one response.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: the caller passed a non-struct. This is a
		// programming error, not client input.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation could not be performed", err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = violationMessage(fe)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
		details,
	)
}

// violationMessage renders a single field error as a human-readable message.
func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "failed validation rule: " + fe.Tag()
	}
}
