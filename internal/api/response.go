package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"optibooking/pkg/errors"
)

// envelope is the body of every JSON response
type envelope struct {
	Success bool    `json:"success"`
	Data    any     `json:"data,omitempty"`
	Error   *apiErr `json:"error,omitempty"`
}

type apiErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Row     int    `json:"row,omitempty"`
	Column  string `json:"column,omitempty"`
	Field   string `json:"field,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func fail(c *gin.Context, err error) {
	status, body := mapError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, envelope{Success: false, Error: body})
}

// mapError turns the error taxonomy into a status code and a client-safe body
func mapError(err error) (int, *apiErr) {
	body := &apiErr{Message: err.Error()}

	var parseErr *errors.ParseError
	if errors.As(err, &parseErr) {
		body.Code = "parse_error"
		body.Row = parseErr.Row
		body.Column = parseErr.Column
		return http.StatusBadRequest, body
	}

	var validationErr *errors.ValidationError
	if errors.As(err, &validationErr) {
		body.Code = "invalid_input"
		body.Field = validationErr.Field
		return http.StatusBadRequest, body
	}

	switch {
	case errors.Is(err, errors.ErrInvalidRange):
		body.Code = "invalid_range"
		return http.StatusBadRequest, body
	case errors.Is(err, errors.ErrInvalidInput), errors.Is(err, errors.ErrParse):
		body.Code = "invalid_input"
		return http.StatusBadRequest, body
	case errors.Is(err, errors.ErrNotFound):
		body.Code = "not_found"
		return http.StatusNotFound, body
	case errors.Is(err, errors.ErrModelUnavailable):
		body.Code = "model_unavailable"
		return http.StatusServiceUnavailable, body
	case errors.Is(err, errors.ErrIngestionBusy):
		body.Code = "ingestion_busy"
		return http.StatusConflict, body
	case errors.Is(err, errors.ErrTrainingFailure):
		body.Code = "training_failure"
		return http.StatusInternalServerError, body
	}

	body.Code = "internal"
	body.Message = "internal error"
	return http.StatusInternalServerError, body
}
