package handlers

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/yukikurage/task-tracker-api/internal/constants"
	"github.com/yukikurage/task-tracker-api/internal/models"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators installs the enum and password validators on gin's
// validator engine. Safe to call more than once.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}

		rules := map[string]validator.Func{
			"userrole": func(fl validator.FieldLevel) bool {
				return models.Role(fl.Field().String()).Valid()
			},
			"taskstatus": func(fl validator.FieldLevel) bool {
				return models.TaskStatus(fl.Field().String()).Valid()
			},
			"taskpriority": func(fl validator.FieldLevel) bool {
				return models.TaskPriority(fl.Field().String()).Valid()
			},
			// bcrypt truncates at 72 bytes, so length is counted in bytes, not runes
			"password": func(fl validator.FieldLevel) bool {
				n := len(fl.Field().String())
				return n >= constants.MinPasswordLength && n <= constants.MaxPasswordLength
			},
		}
		for tag, fn := range rules {
			if err := v.RegisterValidation(tag, fn); err != nil {
				registerErr = fmt.Errorf("register %s validator: %w", tag, err)
				return
			}
		}
	})
	return registerErr
}

// validateVar checks a single value against a tag, e.g. for fields of a
// partial update that are only validated when present.
func validateVar(value interface{}, tag string) error {
	if err := RegisterValidators(); err != nil {
		return err
	}
	return binding.Validator.Engine().(*validator.Validate).Var(value, tag)
}

// validationDetails flattens validator errors into field -> rule.
func validationDetails(err error) map[string]string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}
