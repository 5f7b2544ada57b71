package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// engine lazily builds the shared validator with the project's custom tags:
//
//	notblank  string is non-empty after trimming whitespace
//	username  ValidateUsername
//	password  ValidatePassword
//	mail      ValidateEmail
func engine() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return ValidateUsername(fl.Field().String()) == nil
		})
		_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
			return ValidatePassword(fl.Field().String()) == nil
		})
		_ = v.RegisterValidation("mail", func(fl validator.FieldLevel) bool {
			return ValidateEmail(fl.Field().String()) == nil
		})
		validate = v
	})
	return validate
}

// Struct validates a request DTO and returns the first failure as a readable
// error, or nil. The custom username/password/mail tags report the specific
// rule that failed.
func Struct(req any) error {
	err := engine().Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	return describe(fieldErrs[0])
}

func describe(fe validator.FieldError) error {
	field := fe.Field()
	value, _ := fe.Value().(string)

	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Errorf("%s is required", field)
	case "max":
		return fmt.Errorf("%s must not exceed %s characters", field, fe.Param())
	case "min":
		return fmt.Errorf("%s must be at least %s", field, fe.Param())
	case "gte", "lte":
		return fmt.Errorf("%s is out of range", field)
	case "username":
		return ValidateUsername(value)
	case "password":
		return ValidatePassword(value)
	case "mail":
		return ValidateEmail(value)
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}
