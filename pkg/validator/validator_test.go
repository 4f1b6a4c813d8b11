package validator

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

type statusRequest struct {
	Status string `json:"status" binding:"required,appointment_status"`
	Notes  string `json:"notes" binding:"max=5"`
}

func TestRegisterAndTranslate(t *testing.T) {
	require.NoError(t, Register())
	require.NoError(t, Register())

	assert.NoError(t, binding.Validator.ValidateStruct(&statusRequest{Status: "completed"}))

	err := binding.Validator.ValidateStruct(&statusRequest{Status: "archived", Notes: "too long"})
	require.Error(t, err)

	appErr := Translate(err)
	assert.Equal(t, apperrors.CodeInvalidInput, appErr.Code)
	assert.Equal(t, []FieldError{
		{Field: "status", Message: messages["appointment_status"]},
		{Field: "notes", Message: "is too long"},
	}, FieldsOf(appErr))
}

func TestTranslate_DecodeErrors(t *testing.T) {
	var v struct {
		Version int `json:"version"`
	}
	err := json.Unmarshal([]byte(`{"version":"x"}`), &v)
	assert.Equal(t, "version has the wrong type", Translate(err).Message)

	err = json.Unmarshal([]byte(`{`), &v)
	assert.Equal(t, apperrors.CodeInvalidInput, Translate(err).Code)

	appErr := Translate(errors.New("EOF"))
	assert.Equal(t, "invalid request: EOF", appErr.Message)
	assert.Nil(t, FieldsOf(appErr))
}
