package validation

import (
	"reflect"
	"strings"

	"bookclub/model"

	"github.com/go-playground/validator/v10"
)

// Validator backs echo's c.Validate and is shared with the controllers.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names in errors
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
	_ = v.RegisterValidation("shelf", func(fl validator.FieldLevel) bool {
		return model.ShelfStatus(fl.Field().String()).Valid()
	})
	return &Validator{v: v}
}

func (v *Validator) Engine() *validator.Validate { return v.v }

func (v *Validator) Validate(i interface{}) error {
	return v.v.Struct(i)
}
