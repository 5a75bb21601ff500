package models

import (
	"time"
)

// Role names seeded at migration.
const (
	RoleAdministrator = "administrator"
	RoleUser          = "user"
)

// User model
type User struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time `gorm:"index"`
	Username       string     `gorm:"size:255;not null;unique"`
	HashedPassword []byte     `gorm:"not null" json:"-"`
	Analyses       []Analysis
	RoleID         *uint `gorm:"index"`
	Role           Role  `gorm:"foreignKey:RoleID;references:ID"`
}

// IsAdmin reports whether the user's loaded role is administrator.
func (u *User) IsAdmin() bool {
	return u.Role.Name == RoleAdministrator
}
