package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates a struct and reports the first failing field as a
// common.ErrValidation.
func (s *SessionService) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", common.ErrValidation, fe.Field())
	case "email":
		return fmt.Errorf("%w: %s must be a valid email address", common.ErrValidation, fe.Field())
	case "eqfield":
		return fmt.Errorf("%w: %s and %s do not match", common.ErrValidation, lowerFirst(fe.Param()), fe.Field())
	default:
		return fmt.Errorf("%w: %s is invalid", common.ErrValidation, fe.Field())
	}
}

// checkEmail validates a single address.
func (s *SessionService) checkEmail(field, email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		if strings.TrimSpace(email) == "" {
			return fmt.Errorf("%w: %s is required", common.ErrValidation, field)
		}
		return fmt.Errorf("%w: %s must be a valid email address", common.ErrValidation, field)
	}
	return nil
}

// required takes name/value pairs and fails on the first blank value.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", common.ErrValidation, pairs[i])
		}
	}
	return nil
}

func trimAll(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
