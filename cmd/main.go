package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"tasclms/api/handler"
	apiMiddleware "tasclms/api/middleware"
	"tasclms/api/routes"
	"tasclms/config"
	"tasclms/internal/entity"
	"tasclms/internal/repository"
	"tasclms/internal/service"
	"tasclms/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

func main() {
	db := config.ConnectionDb()
	validate := validator.New()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if err := config.Migrate(db); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	accessSecret := []byte(os.Getenv("JWT_SECRET"))
	issuer := os.Getenv("JWT_ISSUER")
	if len(accessSecret) == 0 {
		logger.Fatal("JWT_SECRET is required")
	}

	tokenManager := utils.TokenManager{
		Secret:          accessSecret,
		PreviousSecret:  []byte(os.Getenv("JWT_PREVIOUS_SECRET")),
		Issuer:          issuer,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	}

	mfaSecret := os.Getenv("MFA_JWT_SECRET")
	if mfaSecret == "" {
		mfaSecret = os.Getenv("JWT_SECRET")
	}
	mfaIssuer := service.MFATokenIssuerJWT{
		Secret: []byte(mfaSecret),
		Issuer: issuer,
		TTL:    5 * time.Minute,
	}

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	verificationRepo := repository.NewVerificationTokenRepository(db)
	oauthLinkRepo := repository.NewOAuthLinkRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	mfaRepo := repository.NewMFASecretRepository(db)
	securityRepo := repository.NewSecurityLogRepository(db)

	passwordHasher := service.BcryptPasswordHasher{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resendSender := service.NewResendEmailSender(
		os.Getenv("RESEND_API_KEY"),
		os.Getenv("RESEND_FROM"),
		os.Getenv("APP_BASE_URL"),
	)
	emailSender := service.NewQueuedEmailSender(resendSender, logger, 0)
	emailSender.Start(ctx)

	authService := service.NewAuthService(
		userRepo,
		sessionRepo,
		verificationRepo,
		mfaRepo,
		securityRepo,
		emailSender,
		passwordHasher,
		tokenManager,
		mfaIssuer,
		service.NewTOTPProvider(issuer),
		service.RealClock{},
		service.AuthConfig{
			AccessTokenTTL:       15 * time.Minute,
			RefreshTokenTTL:      30 * 24 * time.Hour,
			VerificationTokenTTL: 24 * time.Hour,
			MFATokenTTL:          5 * time.Minute,
			MFAIssuer:            issuer,
		},
	)

	verifiers := map[entity.OAuthProvider]service.ProviderVerifier{
		entity.ProviderGoogle: service.NewGoogleVerifier(os.Getenv("GOOGLE_CLIENT_ID")),
	}
	oauthService := service.NewOAuthService(
		userRepo,
		oauthLinkRepo,
		securityRepo,
		verifiers,
		authService,
		service.RealClock{},
	)
	orgService := service.NewOrgService(orgRepo, membershipRepo, userRepo, service.RealClock{})
	authorizer := service.NewAuthorizer(membershipRepo)

	authHandler := handler.NewAuthHandler(authService, validate)
	authHandler.CookieDomain = os.Getenv("COOKIE_DOMAIN")
	authHandler.SecureCookies = os.Getenv("COOKIE_SECURE") != "false"
	oauthHandler := handler.NewOAuthHandler(oauthService, authHandler, validate)
	adminHandler := handler.NewAdminHandler(authService, orgService, authorizer, validate)

	app := echo.New()
	app.HideBanner = true
	app.HidePort = true
	app.Use(echoMiddleware.Recover())
	app.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"status": v.Status,
				"method": v.Method,
				"uri":    v.URI,
				"ip":     v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))

	authMiddleware := apiMiddleware.AuthMiddleware{Tokens: &tokenManager, Sessions: sessionRepo}
	router := routes.NewRouter(app, authHandler, oauthHandler, adminHandler, authMiddleware)
	router.RegisterRoutes()

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.WithField("addr", addr).Info("server started")
	if err := app.StartServer(server); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
