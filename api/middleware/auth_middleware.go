package middleware

import (
	"net/http"
	"strings"

	"tasclms/internal/entity"
	"tasclms/internal/repository"
	"tasclms/internal/utils"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type AuthMiddleware struct {
	Tokens   *utils.TokenManager
	Sessions repository.SessionRepository
}

// RequireAuth validates the bearer token signature and claims. It does not
// hit the database; tokens stay valid until expiry unless a route also
// carries RequireLiveSession.
func (m AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.Tokens == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		token := extractBearerToken(c.Request())
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		claims, err := m.Tokens.ParseAccessToken(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		sessionID, err := uuid.Parse(claims.SessionID)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		SetAuthContext(c, userID, entity.UserRole(claims.Role), sessionID)
		return next(c)
	}
}

// RequireLiveSession rejects tokens whose backing session was revoked or
// expired. Placed after RequireAuth on routes where immediate revocation
// matters more than a database round trip.
func (m AuthMiddleware) RequireLiveSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.Sessions == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		sessionID, ok := SessionIDFromContext(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		session, err := m.Sessions.FindByID(c.Request().Context(), sessionID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		if session == nil || !session.Usable() {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		return next(c)
	}
}

func extractBearerToken(r *http.Request) string {
	authorization := r.Header.Get("Authorization")
	if authorization == "" {
		return ""
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
