package models

import (
	"net/mail"
	"strings"
	"time"
)

// Role is the closed set of user roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin:
		return true
	}
	return false
}

// In reports whether r is a member of the given role set.
func (r Role) In(roles ...Role) bool {
	for _, allowed := range roles {
		if r == allowed {
			return true
		}
	}
	return false
}

// User represents an account in the system.
// PasswordHash and the reset-token fields are never serialized to clients.
type User struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Photo             string     `json:"photo,omitempty"`
	Role              Role       `json:"role"`
	PasswordHash      string     `json:"-"`
	PasswordChangedAt *time.Time `json:"-"`
	ResetTokenHash    string     `json:"-"`
	ResetTokenExpires *time.Time `json:"-"`
	Active            bool       `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks the user's fields and returns all violations joined
// into a single error.
func (u *User) Validate() error {
	var problems []string
	if strings.TrimSpace(u.Name) == "" {
		problems = append(problems, "Please tell us your name.")
	}
	if u.Email == "" {
		problems = append(problems, "Please provide your email.")
	} else if _, err := mail.ParseAddress(u.Email); err != nil {
		problems = append(problems, "Please provide a valid email.")
	}
	if !u.Role.Valid() {
		problems = append(problems, "Role must be one of 'user', 'guide', 'lead-guide' or 'admin'.")
	}
	return joinProblems(problems)
}

// ChangedPasswordAfter reports whether the user's password was changed
// after the given moment. Tokens issued before a password change are stale.
func (u *User) ChangedPasswordAfter(t time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.After(t)
}
