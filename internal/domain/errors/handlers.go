package errors

import (
	"net/http"

	"github.com/pkg/errors"
)

// Envelope is the error shape every caller receives.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// ToEnvelope converts any error returned by the application into an Envelope.
func ToEnvelope(err error) *Envelope {
	var baseErr *BaseError
	if errors.As(err, &baseErr) && baseErr.Details() != "" {
		return &Envelope{
			Status:  baseErr.Status(),
			Message: baseErr.Message() + ": " + baseErr.Details(),
		}
	}

	var appErr AppError
	if errors.As(err, &appErr) {
		return &Envelope{
			Status:  appErr.Status(),
			Message: appErr.Message(),
		}
	}

	return &Envelope{
		Status:  http.StatusBadRequest,
		Message: errors.Cause(err).Error(),
	}
}
