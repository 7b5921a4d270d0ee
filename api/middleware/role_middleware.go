package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tasclms/internal/entity"
)

func RequireRole(allowed ...entity.UserRole) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			currentRole, ok := RoleFromContext(c)
			if !ok {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			for _, role := range allowed {
				if currentRole == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
	}
}
