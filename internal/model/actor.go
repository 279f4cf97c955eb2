package model

import "strings"

// Role is the authorization role carried by an access token.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Actor is the authenticated caller as supplied by the auth layer.  The zero
// Actor is an anonymous visitor.
type Actor struct {
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Authenticated reports whether the actor carries a user id.
func (a Actor) Authenticated() bool { return a.UserID != "" }

// IsAdmin reports whether the actor has staff privileges.
func (a Actor) IsAdmin() bool { return a.Authenticated() && a.Role == RoleAdmin }

// ProfileComplete reports whether first and last name are both filled in.
// Courts require a complete profile before a hold.
func (a Actor) ProfileComplete() bool {
	return strings.TrimSpace(a.FirstName) != "" && strings.TrimSpace(a.LastName) != ""
}
