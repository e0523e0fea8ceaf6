package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleAttendee Role = "attendee"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleAttendee
}

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	Name         string    `bun:"name,notnull" json:"name"`
	Email        string    `bun:"email,unique,notnull" json:"email"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	Role         Role      `bun:"role,notnull" json:"role"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Principal is the authenticated caller resolved from a token.
type Principal struct {
	UserID int64
	Email  string
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccess reports whether the caller may read a resource owned by ownerID.
func (p Principal) CanAccess(ownerID int64) bool {
	return p.IsAdmin() || (p.UserID != 0 && p.UserID == ownerID)
}
