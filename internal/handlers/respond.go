package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/stwalsh4118/daysteward/internal/errors"
	"github.com/stwalsh4118/daysteward/internal/services"
)

// bindError reports a request that failed binding or validation.
func bindError(c *gin.Context, err error, message string) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apierrors.ValidationError(c, validationErrors)
		return
	}
	apierrors.BadRequest(c, message, nil)
}

// serviceError maps a steward error to its HTTP response.
func serviceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrInvalidDate):
		apierrors.Respond(c, http.StatusBadRequest, apierrors.ErrInvalidDate, err.Error(), nil)
	case errors.Is(err, services.ErrInvalidAmount):
		apierrors.Respond(c, http.StatusBadRequest, apierrors.ErrInvalidAmount, err.Error(), nil)
	case errors.Is(err, services.ErrInvalidAddress):
		apierrors.Respond(c, http.StatusBadRequest, apierrors.ErrInvalidAddress, err.Error(), nil)
	case errors.Is(err, services.ErrInsufficientPayment):
		apierrors.Respond(c, http.StatusUnprocessableEntity, apierrors.ErrInsufficientPayment, err.Error(), nil)
	case errors.Is(err, services.ErrInsufficientDeposit):
		apierrors.Respond(c, http.StatusUnprocessableEntity, apierrors.ErrInsufficientDeposit, err.Error(), nil)
	case errors.Is(err, services.ErrWithdrawingTooMuch):
		apierrors.Respond(c, http.StatusUnprocessableEntity, apierrors.ErrWithdrawingTooMuch, err.Error(), nil)
	case errors.Is(err, services.ErrUnauthorized):
		apierrors.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrAlreadyMinted), errors.Is(err, services.ErrLegacyTokenSet):
		apierrors.Conflict(c, err.Error())
	case errors.Is(err, services.ErrLegacyUnavailable), errors.Is(err, services.ErrNotConfigured):
		apierrors.ServiceUnavailable(c, err.Error())
	default:
		apierrors.InternalServerError(c, fallback, err)
	}
}
