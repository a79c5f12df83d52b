package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/models"
)

var validatorsOnce sync.Once

// registerValidators adds the `role` tag and makes field errors use JSON
// names.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			_, err := models.ParseRole(fl.Field().String())
			return err == nil
		})
	})
}

// bindError turns a gin binding failure into a 400 with a readable message.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Invalid("invalid request body")
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fieldMessage(fe))
	}
	return apperr.Invalid(strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "role":
		return fe.Field() + " must be one of ADMIN, INSTRUCTOR, MEMBER"
	case "datetime":
		return fe.Field() + " must be a date (YYYY-MM-DD)"
	}
	return fe.Field() + " is invalid"
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(*raw))
	if err != nil {
		return nil, apperr.Invalid("birthDate must be a date (YYYY-MM-DD)")
	}
	return &t, nil
}

func parseRole(raw *string) (*models.Role, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	role, err := models.ParseRole(*raw)
	if err != nil {
		return nil, apperr.Invalid("role must be one of ADMIN, INSTRUCTOR, MEMBER")
	}
	return &role, nil
}
