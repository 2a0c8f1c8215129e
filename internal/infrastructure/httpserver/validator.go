package httpserver

import (
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/avatarctic/identity-kv/internal/core/apperror"
)

// requestValidator runs the ozzo rules declared on request DTOs and turns
// field errors into a single validation error.
type requestValidator struct{}

func (v *requestValidator) Validate(i interface{}) error {
	val, ok := i.(validation.Validatable)
	if !ok {
		return nil
	}
	err := val.Validate()
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return apperror.NewValidation("Request.Invalid", err.Error())
	}
	fields := make([]string, 0, len(fieldErrs))
	for f := range fieldErrs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	messages := make([]string, 0, len(fields))
	for _, f := range fields {
		messages = append(messages, fmt.Sprintf("%s: %s", f, fieldErrs[f].Error()))
	}
	return apperror.NewValidation("Request.Invalid", messages...)
}
