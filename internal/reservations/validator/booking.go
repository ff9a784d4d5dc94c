package validator

import (
	"errors"
	"fmt"
	"strings"

	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"

	"github.com/go-playground/validator/v10"
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

// BookingValidator checks the structural shape of reservation inputs, queue
// messages and transition jobs. Time-window rules that produce a business
// outcome (past start, reversed range) are left to the callers.
type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("booking_status", validateBookingStatus); err != nil {
		log.Fatal("Failed to register 'booking_status' validator", "error", err)
	}
	if err := v.RegisterValidation("unit_status", validateUnitStatus); err != nil {
		log.Fatal("Failed to register 'unit_status' validator", "error", err)
	}

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func validateBookingStatus(fl validator.FieldLevel) bool {
	return model.BookingStatus(fl.Field().String()).Valid()
}

func validateUnitStatus(fl validator.FieldLevel) bool {
	return model.UnitStatus(fl.Field().String()).Valid()
}

func (v *BookingValidator) ValidateInput(input *model.ReservationInput) error {
	return v.validateStruct(input)
}

func (v *BookingValidator) ValidateModification(input *model.ModificationInput) error {
	return v.validateStruct(input)
}

func (v *BookingValidator) ValidateRequest(req *model.BookingRequest) error {
	return v.validateStruct(req)
}

func (v *BookingValidator) ValidateTransitionJob(job *model.TransitionJob) error {
	if err := v.validateStruct(job); err != nil {
		return err
	}

	if !job.WindowEnd.After(job.WindowStart) {
		return ValidationErrors{
			ValidationError{
				Field:   "WindowEnd",
				Message: "window_end must be after window_start",
			},
		}
	}

	return nil
}

func (v *BookingValidator) validateStruct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "email":
			message = fmt.Sprintf("%s must be a valid e-mail address", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "booking_status":
			message = fmt.Sprintf("%s must be a known booking status", err.Field())
		case "unit_status":
			message = fmt.Sprintf("%s must be a known unit status", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
