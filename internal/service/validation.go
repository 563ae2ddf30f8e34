package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/krzysztofKolodziej/idea-match/internal/apperror"
	"github.com/krzysztofKolodziej/idea-match/internal/model"
)

// STRUCT TAG VALIDATION:
// Input structs declare their rules next to their fields:
//
//	Title string `json:"title" validate:"notblank,max=200"`
//
// go-playground/validator reads those tags at runtime. The custom tags
// registered below cover the rules it has no built-in for. Errors are
// reported with the field's JSON name, the name the client sent.

var (
	phonePattern    = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

const (
	minPasswordLength = 8
	maxPasswordLength = 30
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	registerTag(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	registerTag(v, "category", func(fl validator.FieldLevel) bool {
		return model.IdeaCategory(fl.Field().String()).Valid()
	})
	registerTag(v, "status", func(fl validator.FieldLevel) bool {
		return model.IdeaStatus(fl.Field().String()).Valid()
	})
	registerTag(v, "phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	registerTag(v, "username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	registerTag(v, "password", func(fl validator.FieldLevel) bool {
		return strongPassword(fl.Field().String())
	})

	return v
}

func registerTag(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("service: registering %q validation: %v", tag, err))
	}
}

// strongPassword: 8 to 30 characters, at least one upper-case letter, one
// lower-case letter, one digit and one special character, no whitespace.
func strongPassword(pw string) bool {
	n := len([]rune(pw))
	if n < minPasswordLength || n > maxPasswordLength {
		return false
	}

	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsSpace(r):
			return false
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	return upper && lower && digit && special
}

// validateInput runs the struct's tag rules and converts the first failure
// into an apperror validation error naming the offending field.
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validating input: %w", err)
	}

	fe := fieldErrs[0]
	return apperror.ValidationFailed(fe.Field(), validationMessage(fe))
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "category":
		return fmt.Sprintf("%s must be one of: %s", field, enumList(model.IdeaCategories))
	case "status":
		return fmt.Sprintf("%s must be one of: %s", field, enumList(model.IdeaStatuses))
	case "phone":
		return field + " must be a valid phone number"
	case "username":
		return field + " may only contain letters, digits, dots, underscores and hyphens"
	case "password":
		return fmt.Sprintf(
			"%s must be %d-%d characters with an upper-case letter, a lower-case letter, a digit and a special character, and no whitespace",
			field, minPasswordLength, maxPasswordLength)
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

func enumList[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
