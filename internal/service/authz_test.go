package service

import (
	"context"
	"errors"
	"testing"

	"tasclms/internal/entity"
	"tasclms/internal/repository"

	"github.com/google/uuid"
)

func TestHasRole(t *testing.T) {
	authorizer := NewAuthorizer(nil)

	if !authorizer.HasRole(entity.UserRoleInstructor, entity.UserRoleInstructor, entity.UserRoleLMSManager) {
		t.Error("instructor must match the allowed set")
	}
	if authorizer.HasRole(entity.UserRoleLearner, entity.UserRoleInstructor, entity.UserRoleLMSManager) {
		t.Error("learner must not match the allowed set")
	}
	if authorizer.HasRole(entity.UserRoleLearner) {
		t.Error("empty allowed set must deny")
	}
}

func TestAuthorizeOrg(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()

	orgs := repository.NewOrganizationRepository(env.db)
	memberships := repository.NewMembershipRepository(env.db)
	orgService := NewOrgService(orgs, memberships, env.users, RealClock{})
	authorizer := NewAuthorizer(memberships)

	admin := env.registerAndVerify(t, "orgadmin@example.com")
	learner := env.registerAndVerify(t, "learner@example.com")
	outsider := env.registerAndVerify(t, "outsider@example.com")

	org, err := orgService.CreateOrganization(ctx, "Acme Corp")
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	if _, err := orgService.AddMember(ctx, org.ID, admin.ID, entity.MembershipRoleOrgAdmin); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	if _, err := orgService.AddMember(ctx, org.ID, learner.ID, entity.MembershipRoleOrgLearner); err != nil {
		t.Fatalf("add learner: %v", err)
	}

	if err := authorizer.AuthorizeOrg(ctx, admin.ID, admin.Role, org.ID, entity.MembershipRoleOrgAdmin, entity.MembershipRoleOrgManager); err != nil {
		t.Errorf("org admin denied: %v", err)
	}

	// Wrong org role: member but not in the allowed set.
	err = authorizer.AuthorizeOrg(ctx, learner.ID, learner.Role, org.ID, entity.MembershipRoleOrgAdmin, entity.MembershipRoleOrgManager)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("learner err = %v, want ErrForbidden", err)
	}

	// No membership at all: fail closed.
	err = authorizer.AuthorizeOrg(ctx, outsider.ID, outsider.Role, org.ID, entity.MembershipRoleOrgLearner)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider err = %v, want ErrForbidden", err)
	}

	// Platform admin crosses organization boundaries.
	if err := authorizer.AuthorizeOrg(ctx, uuid.New(), entity.UserRoleTascAdmin, org.ID, entity.MembershipRoleOrgAdmin); err != nil {
		t.Errorf("tasc_admin denied: %v", err)
	}
}

func TestOrgLifecycle(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()

	orgs := repository.NewOrganizationRepository(env.db)
	memberships := repository.NewMembershipRepository(env.db)
	orgService := NewOrgService(orgs, memberships, env.users, RealClock{})

	user := env.registerAndVerify(t, "ada@example.com")

	org, err := orgService.CreateOrganization(ctx, "Acme Corp")
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	if _, err := orgService.CreateOrganization(ctx, "Acme Corp"); !errors.Is(err, ErrOrganizationExists) {
		t.Fatalf("duplicate org err = %v, want ErrOrganizationExists", err)
	}

	if _, err := orgService.AddMember(ctx, org.ID, user.ID, entity.MembershipRoleOrgLearner); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := orgService.AddMember(ctx, org.ID, user.ID, entity.MembershipRoleOrgAdmin); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("duplicate member err = %v, want ErrAlreadyMember", err)
	}
	if _, err := orgService.AddMember(ctx, uuid.New(), user.ID, entity.MembershipRoleOrgLearner); !errors.Is(err, ErrOrganizationNotFound) {
		t.Fatalf("unknown org err = %v, want ErrOrganizationNotFound", err)
	}
	if _, err := orgService.AddMember(ctx, org.ID, uuid.New(), entity.MembershipRoleOrgLearner); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user err = %v, want ErrUserNotFound", err)
	}

	members, err := orgService.ListMembers(ctx, org.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("got %d members, want 1", len(members))
	}
	if members[0].Role != entity.MembershipRoleOrgLearner {
		t.Errorf("member role = %s, want ORG_LEARNER", members[0].Role)
	}
}
