package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yukikurage/task-tracker-api/internal/auth"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"github.com/yukikurage/task-tracker-api/internal/policy"
	"github.com/yukikurage/task-tracker-api/internal/repository"
	"github.com/yukikurage/task-tracker-api/internal/utils"
	"gorm.io/gorm"
)

// UserService handles profile changes.
type UserService struct {
	userRepo repository.UserRepository
	hasher   auth.PasswordHasher
	sessions *AuthService
}

// NewUserService creates a new UserService. Tokens of users who edit their
// own profile are revoked through authService.
func NewUserService(userRepo repository.UserRepository, hasher auth.PasswordHasher, authService *AuthService) *UserService {
	return &UserService{
		userRepo: userRepo,
		hasher:   hasher,
		sessions: authService,
	}
}

// UpdateSelfInput holds the optional profile fields of PUT /users/me.
type UpdateSelfInput struct {
	Email    utils.Optional[string]
	Username utils.Optional[string]
}

// PasswordChange is the nested password payload of a privileged update.
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UpdateUserInput holds the optional fields of PUT /users/{id}.
type UpdateUserInput struct {
	Email    utils.Optional[string]
	Username utils.Optional[string]
	Role     utils.Optional[models.Role]
	Password utils.Optional[PasswordChange]
}

// UpdateSelf applies the supplied fields to the actor's own record and
// then revokes the token the request was made with.
func (s *UserService) UpdateSelf(ctx context.Context, actor *models.User, claims *auth.Claims, input UpdateSelfInput) (*models.User, error) {
	if err := authorize(policy.ActionUpdateSelf, actor, &policy.Resource{OwnerID: actor.ID}); err != nil {
		return nil, err
	}

	target, err := s.findUser(actor.ID)
	if err != nil {
		return nil, err
	}

	facts, err := s.identityFacts(actor.ID, target, input.Email, input.Username)
	if err != nil {
		return nil, err
	}
	if err := enforce(policy.ActionUpdateSelf, policy.CheckUserUpdate(facts)); err != nil {
		return nil, err
	}

	applyIdentity(target, input.Email, input.Username)

	if err := s.save(policy.ActionUpdateSelf, target); err != nil {
		return nil, err
	}

	if s.sessions != nil {
		// the cookie is cleared regardless; a denylist failure is only logged
		_ = s.sessions.Revoke(ctx, claims)
	}

	return target, nil
}

// UpdateUser lets a superadmin edit any account. Rules are checked in the
// order email, username, role, password and nothing is written unless all
// of them pass.
func (s *UserService) UpdateUser(actor *models.User, targetID uint64, input UpdateUserInput) (*models.User, error) {
	if err := authorize(policy.ActionUpdateUser, actor, nil); err != nil {
		return nil, err
	}

	target, err := s.findUser(targetID)
	if err != nil {
		return nil, err
	}

	facts, err := s.identityFacts(actor.ID, target, input.Email, input.Username)
	if err != nil {
		return nil, err
	}
	facts.RoleChanged = input.Role.Set
	facts.PasswordChanged = input.Password.Set
	if input.Password.Set && target.ID == actor.ID {
		facts.CurrentPasswordOK = s.hasher.Verify(input.Password.Value.CurrentPassword, target.PasswordHash)
	}

	if err := enforce(policy.ActionUpdateUser, policy.CheckUserUpdate(facts)); err != nil {
		return nil, err
	}

	applyIdentity(target, input.Email, input.Username)
	if input.Role.Set {
		target.Role = input.Role.Value
	}
	if input.Password.Set {
		hash, err := s.hasher.Hash(input.Password.Value.NewPassword)
		if err != nil {
			return nil, ErrFailedToHashPassword
		}
		target.PasswordHash = hash
	}

	if err := s.save(policy.ActionUpdateUser, target); err != nil {
		return nil, err
	}

	return target, nil
}

func (s *UserService) findUser(id uint64) (*models.User, error) {
	user, err := s.userRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// identityFacts looks up who currently holds the requested email and
// username.
func (s *UserService) identityFacts(actorID uint64, target *models.User, email, username utils.Optional[string]) (policy.UserUpdateFacts, error) {
	facts := policy.UserUpdateFacts{ActorID: actorID, TargetID: target.ID}

	if email.Set && normalizeEmail(email.Value) != target.Email {
		facts.EmailChanged = true
		owner, err := ownerID(s.userRepo.FindByEmail(normalizeEmail(email.Value)))
		if err != nil {
			return facts, fmt.Errorf("failed to check email: %w", err)
		}
		facts.EmailOwnerID = owner
	}

	if username.Set && strings.TrimSpace(username.Value) != target.Username {
		facts.UsernameChanged = true
		owner, err := ownerID(s.userRepo.FindByUsername(strings.TrimSpace(username.Value)))
		if err != nil {
			return facts, fmt.Errorf("failed to check username: %w", err)
		}
		facts.UsernameOwnerID = owner
	}

	return facts, nil
}

func (s *UserService) save(action policy.Action, user *models.User) error {
	if err := s.userRepo.Update(user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return duplicateUserError(s.userRepo, action, user.Email, user.ID)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func applyIdentity(user *models.User, email, username utils.Optional[string]) {
	if email.Set {
		user.Email = normalizeEmail(email.Value)
	}
	if username.Set {
		user.Username = strings.TrimSpace(username.Value)
	}
}

func ownerID(user *models.User, err error) (*uint64, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user.ID, nil
}

func taken(user *models.User, err error) (bool, error) {
	owner, err := ownerID(user, err)
	return owner != nil, err
}

// duplicateUserError works out which unique field lost a write race.
func duplicateUserError(repo repository.UserRepository, action policy.Action, email string, selfID uint64) error {
	if existing, err := repo.FindByEmail(email); err == nil && existing.ID != selfID {
		return conflict(action, policy.ReasonEmailTaken)
	}
	return conflict(action, policy.ReasonUsernameTaken)
}
