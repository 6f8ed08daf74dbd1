package domain

import (
	"strings"
	"time"
)

// Role tags a user account with its permission set.
type Role string

const (
	RoleManager   Role = "manager"
	RoleDeveloper Role = "developer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleManager || r == RoleDeveloper
}

// User is an account that can sign in and work on bugs.
type User struct {
	ID           int64
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// FullName joins first and last name the way bug listings search on it.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsManager reports whether the user holds the manager role.
func (u *User) IsManager() bool {
	return u != nil && u.Role == RoleManager
}

// Ref returns the lightweight reference embedded in bug records.
func (u *User) Ref() *UserRef {
	return &UserRef{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

// UserRef is the subset of a user carried on a bug (creator, assignee).
type UserRef struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
}

// FullName mirrors User.FullName.
func (r *UserRef) FullName() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// NormalizeEmail lowercases the domain part of an address, leaving the
// local part untouched.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}
