// Package policy decides who may do what. Every function here is pure: the
// caller gathers the facts (actor, resource ownership, lookups) and the
// package only answers permit or deny with a stable reason.
package policy

import (
	"fmt"

	"github.com/yukikurage/task-tracker-api/internal/models"
)

type Action string

const (
	ActionCreateTask    Action = "create_task"
	ActionUpdateTask    Action = "update_task"
	ActionDeleteTask    Action = "delete_task"
	ActionCreateComment Action = "create_comment"
	ActionUpdateSelf    Action = "update_self"
	ActionUpdateUser    Action = "update_user"
	ActionRegister      Action = "register"
)

// Kind classifies a denial so transports can pick a status code.
type Kind int

const (
	KindNone Kind = iota
	KindForbidden
	KindConflict
	KindInvalid
)

// Reason is a machine-stable denial code.
type Reason string

const (
	ReasonAdminRoleRequired        Reason = "ADMIN_ROLE_REQUIRED"
	ReasonSuperadminRoleRequired   Reason = "SUPERADMIN_ROLE_REQUIRED"
	ReasonNotTaskAuthor            Reason = "NOT_TASK_AUTHOR"
	ReasonNotOwner                 Reason = "NOT_OWNER"
	ReasonEmailTaken               Reason = "EMAIL_TAKEN"
	ReasonUsernameTaken            Reason = "USERNAME_TAKEN"
	ReasonOwnRoleChange            Reason = "OWN_ROLE_CHANGE"
	ReasonForeignPasswordChange    Reason = "FOREIGN_PASSWORD_CHANGE"
	ReasonCurrentPasswordIncorrect Reason = "CURRENT_PASSWORD_INCORRECT"
	ReasonRoleNotSelectable        Reason = "ROLE_NOT_SELECTABLE"
	ReasonUnknownAction            Reason = "UNKNOWN_ACTION"
)

type Decision struct {
	Allowed bool
	Reason  Reason
	Kind    Kind
}

var permit = Decision{Allowed: true}

func deny(kind Kind, reason Reason) Decision {
	return Decision{Kind: kind, Reason: reason}
}

// Err returns nil for a permit and a *DeniedError otherwise.
func (d Decision) Err(action Action) error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Action: action, Decision: d}
}

// DeniedError carries a denial through service layers.
type DeniedError struct {
	Action   Action
	Decision Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Action, e.Decision.Reason)
}

// Subject is the authenticated actor a decision is made for.
type Subject struct {
	ID   uint64
	Role models.Role
}

// SubjectOf builds a Subject from a stored user.
func SubjectOf(u *models.User) Subject {
	return Subject{ID: u.ID, Role: u.Role}
}

// Resource describes the ownership of the thing being acted on.
type Resource struct {
	OwnerID uint64
}

type rule struct {
	allow        bool
	requireOwner bool
	reason       Reason // reported on denial
}

func allowed() rule { return rule{allow: true} }

func ownerOnly(reason Reason) rule { return rule{allow: true, requireOwner: true, reason: reason} }

func denied(reason Reason) rule { return rule{reason: reason} }

// rules is the single source of truth for role and ownership gates.
var rules = map[Action]map[models.Role]rule{
	ActionCreateTask: {
		models.RoleUser:       denied(ReasonAdminRoleRequired),
		models.RoleAdmin:      allowed(),
		models.RoleSuperadmin: allowed(),
	},
	ActionUpdateTask: {
		models.RoleUser:       denied(ReasonAdminRoleRequired),
		models.RoleAdmin:      ownerOnly(ReasonNotTaskAuthor),
		models.RoleSuperadmin: allowed(),
	},
	ActionDeleteTask: {
		models.RoleUser:       denied(ReasonAdminRoleRequired),
		models.RoleAdmin:      ownerOnly(ReasonNotTaskAuthor),
		models.RoleSuperadmin: allowed(),
	},
	ActionCreateComment: {
		models.RoleUser:       allowed(),
		models.RoleAdmin:      allowed(),
		models.RoleSuperadmin: allowed(),
	},
	ActionUpdateSelf: {
		models.RoleUser:       ownerOnly(ReasonNotOwner),
		models.RoleAdmin:      ownerOnly(ReasonNotOwner),
		models.RoleSuperadmin: ownerOnly(ReasonNotOwner),
	},
	ActionUpdateUser: {
		models.RoleUser:       denied(ReasonSuperadminRoleRequired),
		models.RoleAdmin:      denied(ReasonSuperadminRoleRequired),
		models.RoleSuperadmin: allowed(),
	},
}

// Authorize evaluates the role gate for action and, when resource is not
// nil, the ownership gate as well. Handlers that must report a missing
// resource between the two gates call it twice.
func Authorize(action Action, subject Subject, resource *Resource) Decision {
	byRole, ok := rules[action]
	if !ok {
		return deny(KindForbidden, ReasonUnknownAction)
	}
	r, ok := byRole[subject.Role]
	if !ok {
		// unknown roles get nothing
		return deny(KindForbidden, ReasonAdminRoleRequired)
	}
	if !r.allow {
		return deny(KindForbidden, r.reason)
	}
	if r.requireOwner && resource != nil && resource.OwnerID != subject.ID {
		return deny(KindForbidden, r.reason)
	}
	return permit
}

// Registration describes a sign-up attempt.
type Registration struct {
	EmailTaken    bool
	UsernameTaken bool
	RequestedRole models.Role
	// RoleSelectable allows callers to pick a role other than user.
	RoleSelectable bool
}

// CheckRegistration enforces uniqueness and the role selection switch.
func CheckRegistration(r Registration) Decision {
	if r.EmailTaken {
		return deny(KindConflict, ReasonEmailTaken)
	}
	if r.UsernameTaken {
		return deny(KindConflict, ReasonUsernameTaken)
	}
	if r.RequestedRole != "" && r.RequestedRole != models.RoleUser && !r.RoleSelectable {
		return deny(KindForbidden, ReasonRoleNotSelectable)
	}
	return permit
}

// UserUpdateFacts are the inputs for a profile change on TargetID.
// EmailOwnerID and UsernameOwnerID hold the id of the account currently
// using the requested value, or nil when it is free.
type UserUpdateFacts struct {
	ActorID  uint64
	TargetID uint64

	EmailChanged bool
	EmailOwnerID *uint64

	UsernameChanged bool
	UsernameOwnerID *uint64

	RoleChanged bool

	PasswordChanged   bool
	CurrentPasswordOK bool
}

// CheckUserUpdate applies the field rules in order email, username, role,
// password and stops at the first violation.
func CheckUserUpdate(f UserUpdateFacts) Decision {
	if f.EmailChanged && !available(f.EmailOwnerID, f.TargetID) {
		return deny(KindConflict, ReasonEmailTaken)
	}
	if f.UsernameChanged && !available(f.UsernameOwnerID, f.TargetID) {
		return deny(KindConflict, ReasonUsernameTaken)
	}
	if f.RoleChanged && f.TargetID == f.ActorID {
		return deny(KindForbidden, ReasonOwnRoleChange)
	}
	if f.PasswordChanged {
		if f.TargetID != f.ActorID {
			return deny(KindForbidden, ReasonForeignPasswordChange)
		}
		if !f.CurrentPasswordOK {
			return deny(KindInvalid, ReasonCurrentPasswordIncorrect)
		}
	}
	return permit
}

func available(ownerID *uint64, targetID uint64) bool {
	return ownerID == nil || *ownerID == targetID
}
