package handler

import (
	"errors"
	"net/http"

	"offer-parser/internal/repository"
	"offer-parser/internal/schema"
	"offer-parser/internal/service"

	"github.com/labstack/echo/v4"
)

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	var verr *schema.ValidationError
	var eerr *service.ExtractionError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict), errors.Is(err, service.ErrIllegalTransition):
		return http.StatusConflict
	case errors.As(err, &verr),
		errors.Is(err, service.ErrEmptyBody),
		errors.Is(err, service.ErrInvalidAccount),
		errors.Is(err, service.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.As(err, &eerr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, logger echo.Logger, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed:", err)
		return c.JSON(status, map[string]string{
			"error": "Internal server error",
		})
	}
	return c.JSON(status, map[string]string{
		"error": err.Error(),
	})
}
