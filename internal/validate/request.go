package validate

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"nonogram/internal/errs"
)

var levelSizePattern = regexp.MustCompile(`^\d+x\d+$`)

// NewValidator returns a struct validator with the level_size tag registered
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("level_size", func(fl validator.FieldLevel) bool {
		return levelSizePattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates s and converts failures to ErrValidation listing each offending field
func Struct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errs.Validation("%s", err.Error())
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fe.Field()+" must satisfy "+fe.Tag()+"="+fe.Param())
		} else {
			parts = append(parts, fe.Field()+" must satisfy "+fe.Tag())
		}
	}
	return errs.Validation("%s", strings.Join(parts, ", "))
}
