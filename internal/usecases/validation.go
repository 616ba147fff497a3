package usecases

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

func ValidateUUID(rawUUID string) bool {
	_, err := uuid.Parse(rawUUID)
	return err == nil
}

func requireUUID(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, field)
	}
	if !ValidateUUID(value) {
		return fmt.Errorf("%w: %s must be a valid id", ErrInvalidArgument, field)
	}
	return nil
}

func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		f := fieldErrs[0]
		return fmt.Errorf("%w: %s failed on %s", ErrInvalidArgument, f.Field(), f.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
}
