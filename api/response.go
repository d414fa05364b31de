package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type ValidationError struct {
	Code    string         `json:"code,omitempty"`
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

func dataResponse(c echo.Context, status int, data any) error {
	return c.JSON(status, Response{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func successResponse(c echo.Context, data any) error {
	return dataResponse(c, http.StatusOK, data)
}

func badRequestResponse(c echo.Context, data any) error {
	return dataResponse(c, http.StatusBadRequest, data)
}

func errorResponse(c echo.Context, status int, msg string) error {
	return c.JSON(status, Response{Status: status, Message: msg})
}
