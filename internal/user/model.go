package user

import (
	"strings"
	"time"
)

// Role is the visibility tier of a user. There are exactly two.
type Role int

const (
	RoleStandard Role = iota
	RoleAdmin
)

// ParseRole maps the stored tag to a Role. Anything but "admin" is standard.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), "admin") {
		return RoleAdmin
	}
	return RoleStandard
}

func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "user"
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	*r = ParseRole(string(b))
	return nil
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// RegisterRequest payload of registration.
// swagger:model RegisterRequest
type RegisterRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"correct-horse"`
	Role     string `json:"role"     example:"user"`
}

// LoginRequest payload of login.
// swagger:model LoginRequest
type LoginRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"correct-horse"`
}

// PasswordChangeRequest payload of password change.
// swagger:model PasswordChangeRequest
type PasswordChangeRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}
