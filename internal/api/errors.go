package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// NotFoundJSON gives every error path (including Echo's own 404/405) the
// same JSON shape.
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if he, ok := err.(*echo.HTTPError); ok {
			_ = c.JSON(he.Code, ErrorResponse{Error: http.StatusText(he.Code), Code: he.Code})
			return
		}
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: http.StatusInternalServerError})
	}
}
