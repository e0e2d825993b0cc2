package services

import (
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = newValidator()

// newValidator reports fields by their JSON name, the one clients actually send.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateCommand checks the struct tags of an inbound command and turns any
// violation into a ValidationError.
func validateCommand(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !stderrors.As(err, &fieldErrors) {
		return errors.Validation("invalid payload: %v", err)
	}
	messages := lo.Map(fieldErrors, func(fe validator.FieldError, _ int) string {
		return describe(fe)
	})
	return errors.Validation("%s", strings.Join(lo.Uniq(messages), ", "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "len":
		return fmt.Sprintf("%s must contain exactly %s entries", fe.Field(), fe.Param())
	case "unique":
		return fmt.Sprintf("%s must be distinct", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
