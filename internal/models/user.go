package models

import (
	"strings"

	"github.com/google/uuid"
)

// User is an account known to the collaborator directory.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  *string   `json:"name,omitempty"`
}

// Username is the short handle collaborator mentions are matched against.
func (u *User) Username() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return "unknown"
}
