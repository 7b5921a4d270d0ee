package handler

import (
	"errors"
	"net/http"

	"tasclms/api/middleware"
	"tasclms/internal/dto"
	"tasclms/internal/entity"
	"tasclms/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type AdminHandler struct {
	Auth       *service.AuthService
	Orgs       *service.OrgService
	Authorizer *service.Authorizer
	Validate   *validator.Validate
}

func NewAdminHandler(auth *service.AuthService, orgs *service.OrgService, authorizer *service.Authorizer, validate *validator.Validate) *AdminHandler {
	return &AdminHandler{Auth: auth, Orgs: orgs, Authorizer: authorizer, Validate: validate}
}

func (h *AdminHandler) ListUsers(c echo.Context) error {
	limit, offset := parseLimitOffset(c)
	users, err := h.Auth.ListUsers(c.Request().Context(), limit, offset)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.UserResponsesFromEntities(users))
}

func (h *AdminHandler) DeactivateUser(c echo.Context) error {
	actorID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("invalid user id"))
	}
	if err := h.Auth.DeactivateUser(c.Request().Context(), userID, actorID); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) ReactivateUser(c echo.Context) error {
	actorID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("invalid user id"))
	}
	if err := h.Auth.ReactivateUser(c.Request().Context(), userID, actorID); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) ChangeRole(c echo.Context) error {
	actorID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("invalid user id"))
	}
	var req dto.ChangeRoleRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	role := entity.UserRole(req.Role)
	if !role.Valid() {
		return writeError(c, http.StatusBadRequest, errors.New("unknown role"))
	}
	if err := h.Auth.ChangeRole(c.Request().Context(), userID, role, actorID); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) RevokeUserSessions(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("invalid user id"))
	}
	if err := h.Auth.RevokeUserSessions(c.Request().Context(), userID); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) CreateOrganization(c echo.Context) error {
	var req dto.CreateOrganizationRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	org, err := h.Orgs.CreateOrganization(c.Request().Context(), req.Name)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.OrganizationResponseFromEntity(org))
}

func (h *AdminHandler) AddMember(c echo.Context) error {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("invalid organization id"))
	}
	var req dto.AddMemberRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("invalid user id"))
	}
	role := entity.MembershipRole(req.Role)
	if !role.Valid() {
		return writeError(c, http.StatusBadRequest, errors.New("unknown membership role"))
	}
	membership, err := h.Orgs.AddMember(c.Request().Context(), orgID, userID, role)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.MembershipResponseFromEntity(membership))
}

// ListMembers is reachable by any authenticated user but gated per
// organization: org admins and managers of that organization, or platform
// admins, may read the roster.
func (h *AdminHandler) ListMembers(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	role, ok := middleware.RoleFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("invalid organization id"))
	}
	if err := h.Authorizer.AuthorizeOrg(c.Request().Context(), userID, role, orgID,
		entity.MembershipRoleOrgAdmin, entity.MembershipRoleOrgManager); err != nil {
		return writeServiceError(c, err)
	}
	memberships, err := h.Orgs.ListMembers(c.Request().Context(), orgID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MembershipResponsesFromEntities(memberships))
}

func (h *AdminHandler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}
