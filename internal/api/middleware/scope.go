package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Scope only lets through tokens carrying one of the allowed scopes.
func Scope(allowed ...string) echo.MiddlewareFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		set[s] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scope, _ := c.Get(KeyScope).(string)
			if _, ok := set[scope]; !ok {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
