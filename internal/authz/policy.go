// Package authz decides what a user may see and change. Every role maps to
// a Policy in a fixed table so that manager and developer behaviour can be
// exercised independently of each other.
package authz

import "github.com/spec-kit/bug-tracker/internal/domain"

// FieldSet is a set of bug fields a caller may write.
type FieldSet map[domain.BugField]struct{}

// Has reports whether f is in the set.
func (s FieldSet) Has(f domain.BugField) bool {
	_, ok := s[f]
	return ok
}

func fields(list ...domain.BugField) FieldSet {
	set := make(FieldSet, len(list))
	for _, f := range list {
		set[f] = struct{}{}
	}
	return set
}

// Policy is the capability record for one role.
type Policy struct {
	CanAssign bool
	CanDelete bool
	// SeesAll lifts the assignee restriction on listings and detail views.
	SeesAll  bool
	Editable FieldSet
}

var policies = map[domain.Role]Policy{
	domain.RoleManager: {
		CanAssign: true,
		CanDelete: true,
		SeesAll:   true,
		Editable: fields(
			domain.BugFieldTitle,
			domain.BugFieldSeverity,
			domain.BugFieldStatus,
			domain.BugFieldDescription,
			domain.BugFieldAssignee,
		),
	},
	domain.RoleDeveloper: {
		Editable: fields(
			domain.BugFieldTitle,
			domain.BugFieldSeverity,
			domain.BugFieldStatus,
			domain.BugFieldDescription,
		),
	},
}

// PolicyFor returns the policy for a role. Unknown roles get an empty
// policy, which is strictly weaker than a developer's.
func PolicyFor(role domain.Role) Policy {
	if p, ok := policies[role]; ok {
		return p
	}
	return Policy{Editable: FieldSet{}}
}

// AllowedFields lists the bug fields user may set on create or update.
// creator is never among them; it is always forced to the acting user.
func AllowedFields(user *domain.User) FieldSet {
	if user == nil {
		return FieldSet{}
	}
	return PolicyFor(user.Role).Editable
}

// ListScope returns the assignee a listing must be restricted to, or nil
// when the user may see every bug.
func ListScope(user *domain.User) *int64 {
	if PolicyFor(user.Role).SeesAll {
		return nil
	}
	id := user.ID
	return &id
}

// CanView reports whether user may open the detail view of bug. Any
// manager or developer may, whoever the bug is assigned to.
func CanView(user *domain.User, bug *domain.Bug) bool {
	return user != nil && bug != nil && user.Role.Valid()
}

// CanEdit reports whether user may update bug. Field restrictions are
// applied separately through AllowedFields.
func CanEdit(user *domain.User, bug *domain.Bug) bool {
	return CanView(user, bug)
}

// CanClose reports whether user may close bug: its assignee or a manager.
func CanClose(user *domain.User, bug *domain.Bug) bool {
	if user == nil || bug == nil {
		return false
	}
	return bug.IsAssignedTo(user.ID) || user.IsManager()
}

// CanDelete reports whether user may delete bugs at all.
func CanDelete(user *domain.User) bool {
	return user != nil && PolicyFor(user.Role).CanDelete
}

// CanAssign reports whether user may set a bug's assignee.
func CanAssign(user *domain.User) bool {
	return user != nil && PolicyFor(user.Role).CanAssign
}
