package handler

import (
	"errors"
	"net/http"

	"tasclms/api/middleware"
	"tasclms/internal/dto"
	"tasclms/internal/entity"
	"tasclms/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type OAuthHandler struct {
	Service  *service.OAuthService
	Auth     *AuthHandler
	Validate *validator.Validate
}

func NewOAuthHandler(svc *service.OAuthService, auth *AuthHandler, validate *validator.Validate) *OAuthHandler {
	return &OAuthHandler{Service: svc, Auth: auth, Validate: validate}
}

func (h *OAuthHandler) SignIn(c echo.Context) error {
	var req dto.OAuthSignInRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	input := service.SignInInput{
		Provider:   entity.ProviderGoogle,
		IDToken:    req.IDToken,
		DeviceID:   req.DeviceID,
		DeviceName: req.DeviceName,
		IPAddress:  stringPtr(c.RealIP()),
		UserAgent:  stringPtr(c.Request().UserAgent()),
	}
	result, err := h.Service.SignIn(c.Request().Context(), input)
	if err != nil {
		return writeServiceError(c, err)
	}
	h.Auth.setRefreshCookie(c, result.Tokens.RefreshToken, result.Tokens.RefreshExpiresIn)
	status := http.StatusOK
	if result.IsNewUser {
		status = http.StatusCreated
	}
	return c.JSON(status, dto.OAuthSignInResponse{
		AccessToken:      result.Tokens.AccessToken,
		ExpiresIn:        result.Tokens.ExpiresIn,
		RefreshToken:     result.Tokens.RefreshToken,
		RefreshExpiresIn: result.Tokens.RefreshExpiresIn,
		User:             dto.UserResponseFromEntity(result.User),
		IsNewUser:        result.IsNewUser,
	})
}

func (h *OAuthHandler) Link(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	var req dto.OAuthLinkRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	link, err := h.Service.Link(c.Request().Context(), userID, entity.ProviderGoogle, req.IDToken)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.OAuthLinkStatus{
		Provider: string(link.Provider),
		LinkedAt: link.LinkedAt,
	})
}

func (h *OAuthHandler) Unlink(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	var req dto.OAuthUnlinkRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	provider := entity.OAuthProvider(req.Provider)
	if !provider.Valid() {
		return writeError(c, http.StatusBadRequest, errors.New("unknown provider"))
	}
	if err := h.Service.Unlink(c.Request().Context(), userID, provider); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *OAuthHandler) Status(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	links, err := h.Service.Status(c.Request().Context(), userID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.OAuthStatusFromLinks(links))
}

func (h *OAuthHandler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}
