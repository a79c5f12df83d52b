package models

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleInstructor Role = "INSTRUCTOR"
	RoleMember     Role = "MEMBER"
)

// Roles lists every role in privilege order.
var Roles = []Role{RoleAdmin, RoleInstructor, RoleMember}

// ParseRole accepts a role name in any case.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleInstructor:
		return RoleInstructor, nil
	case RoleMember:
		return RoleMember, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleInstructor, RoleMember:
		return true
	}
	return false
}

// User is the persisted credential record. PasswordHash never leaves the
// service layer; use Profile for anything sent to clients.
type User struct {
	ID           string
	GymID        string
	Name         string
	Email        string
	PasswordHash []byte
	Role         Role
	NationalID   *string
	Phone        *string
	BirthDate    *time.Time
	PhotoKey     *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Profile struct {
	ID         string    `json:"id"`
	GymID      string    `json:"gymId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	NationalID *string   `json:"nationalId,omitempty"`
	Phone      *string   `json:"phone,omitempty"`
	BirthDate  *string   `json:"birthDate,omitempty"`
	PhotoKey   *string   `json:"photoKey,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

const DateLayout = "2006-01-02"

func (u User) Profile() Profile {
	p := Profile{
		ID:         u.ID,
		GymID:      u.GymID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		NationalID: u.NationalID,
		Phone:      u.Phone,
		PhotoKey:   u.PhotoKey,
		Active:     u.Active,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
	if u.BirthDate != nil {
		d := u.BirthDate.Format(DateLayout)
		p.BirthDate = &d
	}
	return p
}
