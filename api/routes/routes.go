package routes

import (
	"time"

	"tasclms/api/handler"
	"tasclms/api/middleware"
	"tasclms/internal/entity"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type Router struct {
	Echo           *echo.Echo
	Auth           *handler.AuthHandler
	OAuth          *handler.OAuthHandler
	Admin          *handler.AdminHandler
	AuthMiddleware middleware.AuthMiddleware
	AuthRate       *middleware.RateLimiter
	LoginRate      *middleware.RateLimiter
}

func NewRouter(
	e *echo.Echo,
	authHandler *handler.AuthHandler,
	oauthHandler *handler.OAuthHandler,
	adminHandler *handler.AdminHandler,
	authMiddleware middleware.AuthMiddleware,
) *Router {
	return &Router{
		Echo:           e,
		Auth:           authHandler,
		OAuth:          oauthHandler,
		Admin:          adminHandler,
		AuthMiddleware: authMiddleware,
		AuthRate:       middleware.NewRateLimiter(rate.Limit(5), 10, 5*time.Minute),
		LoginRate:      middleware.NewRateLimiter(rate.Limit(2), 4, 10*time.Minute),
	}
}

func (r *Router) RegisterRoutes() {
	e := r.Echo

	e.POST("/auth/register", r.Auth.Register, r.AuthRate.Middleware())
	e.POST("/auth/verify-email", r.Auth.VerifyEmail, r.AuthRate.Middleware())
	e.POST("/auth/resend-verification", r.Auth.ResendVerification, r.LoginRate.Middleware())
	e.POST("/auth/login", r.Auth.Login, r.LoginRate.Middleware())
	e.POST("/auth/login/mfa", r.Auth.LoginWithMFA, r.LoginRate.Middleware())
	e.POST("/auth/refresh", r.Auth.Refresh, r.AuthRate.Middleware())
	e.POST("/auth/logout", r.Auth.Logout, r.AuthMiddleware.RequireAuth)
	e.POST("/auth/logout-all", r.Auth.LogoutAll, r.AuthMiddleware.RequireAuth)
	e.POST("/auth/mfa/enable", r.Auth.EnableMFA, r.AuthMiddleware.RequireAuth)
	e.POST("/auth/mfa/verify", r.Auth.VerifyMFA, r.AuthMiddleware.RequireAuth)
	e.POST("/auth/mfa/disable", r.Auth.DisableMFA, r.AuthMiddleware.RequireAuth)

	e.POST("/auth/google", r.OAuth.SignIn, r.LoginRate.Middleware())
	e.POST("/auth/google/link", r.OAuth.Link, r.AuthMiddleware.RequireAuth)
	e.POST("/auth/google/unlink", r.OAuth.Unlink, r.AuthMiddleware.RequireAuth)
	e.GET("/auth/google/status", r.OAuth.Status, r.AuthMiddleware.RequireAuth)

	e.GET("/me", r.Auth.Me, r.AuthMiddleware.RequireAuth)
	e.GET("/organizations/:id/members", r.Admin.ListMembers, r.AuthMiddleware.RequireAuth)

	admin := e.Group("/admin",
		r.AuthMiddleware.RequireAuth,
		r.AuthMiddleware.RequireLiveSession,
		middleware.RequireRole(entity.UserRoleTascAdmin),
	)
	admin.GET("/users", r.Admin.ListUsers)
	admin.POST("/users/:id/deactivate", r.Admin.DeactivateUser)
	admin.POST("/users/:id/reactivate", r.Admin.ReactivateUser)
	admin.POST("/users/:id/role", r.Admin.ChangeRole)
	admin.POST("/users/:id/revoke-sessions", r.Admin.RevokeUserSessions)
	admin.POST("/organizations", r.Admin.CreateOrganization)
	admin.POST("/organizations/:id/members", r.Admin.AddMember)
}
