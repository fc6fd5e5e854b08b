package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

// validationError turns validator output into a VALIDATION_ERROR listing the
// offending fields.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	fields := make(map[string]interface{}, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	wrapped := appErrors.WithDetails(appErrors.ErrValidation, "invalid payload", map[string]interface{}{"fields": fields})
	wrapped.Err = err
	return wrapped
}

func forbidden(capability models.Capability) error {
	return appErrors.WithDetails(appErrors.ErrForbidden, fmt.Sprintf("missing capability %s", capability),
		map[string]interface{}{"capability": string(capability)})
}

func invalidField(field, message string) error {
	return appErrors.WithDetails(appErrors.ErrInvalidField, message, map[string]interface{}{"field": field})
}

// wrapStorage keeps typed errors raised by the storage layer and wraps
// anything else as an internal failure.
func wrapStorage(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
