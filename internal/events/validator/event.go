package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"slotbook/pkg/logger"
	"slotbook/pkg/model"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// EventValidator checks request structs before any store access. Timestamp
// strings are validated separately by the service so malformed RFC 3339
// input gets its own fixed error message.
type EventValidator struct {
	validate *validator.Validate
	log      *logger.Logger
}

func NewEventValidator(log *logger.Logger) *EventValidator {
	return &EventValidator{
		validate: validator.New(),
		log:      log,
	}
}

func (v *EventValidator) ValidateCreate(req *model.CreateEventRequest) error {
	return v.translate(v.validate.Struct(req))
}

func (v *EventValidator) ValidateBooking(req *model.BookingRequest) error {
	return v.translate(v.validate.Struct(req))
}

func (v *EventValidator) translate(err error) error {
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		v.log.Error("Validator returned unexpected error type", "error", err)
		return ValidationErrors{{Field: "request", Message: "invalid request"}}
	}

	out := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fe.Namespace(),
			Message: messageForTag(fe),
		})
	}
	return out
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind().String() == "slice" {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind().String() == "slice" {
			return fmt.Sprintf("must contain at most %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
