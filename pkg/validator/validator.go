// Package validator wires request validation into gin's binding engine and
// turns binding failures into INVALID_INPUT errors.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/scheduling-api/internal/model"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

// FieldError represents a validation error
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required":           "is required",
	"min":                "is too small",
	"max":                "is too long",
	"appointment_status": "must be one of scheduled, completed, cancelled, no_show",
	"waitlist_status":    "must be one of active, claimed, expired",
}

var registerOnce sync.Once

// Register installs custom validations and json field naming on gin's
// validator. Safe to call more than once.
func Register() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		if err = v.RegisterValidation("appointment_status", func(fl validator.FieldLevel) bool {
			return model.AppointmentStatus(fl.Field().String()).Valid()
		}); err != nil {
			return
		}
		err = v.RegisterValidation("waitlist_status", func(fl validator.FieldLevel) bool {
			return model.WaitlistStatus(fl.Field().String()).Valid()
		})
	})
	return err
}

// Translate converts a binding error into an INVALID_INPUT AppError.
func Translate(err error) *apperrors.AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		parts := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msg, ok := messages[e.Tag()]
			if !ok {
				msg = "failed " + e.Tag() + " validation"
			}
			fields = append(fields, FieldError{Field: e.Field(), Message: msg})
			parts = append(parts, e.Field()+" "+msg)
		}
		return apperrors.NewBadRequest(strings.Join(parts, "; "), &Errors{Fields: fields})
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return apperrors.NewBadRequest("malformed JSON body", err)
	case errors.As(err, &typeErr):
		return apperrors.NewBadRequest(fmt.Sprintf("%s has the wrong type", typeErr.Field), err)
	}
	return apperrors.NewBadRequest("invalid request: "+err.Error(), err)
}

// Errors carries per-field details behind an INVALID_INPUT error.
type Errors struct {
	Fields []FieldError
}

func (e *Errors) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// FieldsOf returns field details attached by Translate, if any.
func FieldsOf(err error) []FieldError {
	var e *Errors
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
