package model

import "time"

const (
	RoleUser       = "USER"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPERADMIN"
)

func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	PhoneNumber       string
	Role              string
	EmailConfirmed    bool
	ProfilePictureURL *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
