package model

import "time"

// Role distinguishes ordinary users from administrators.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an account that can own reservations.
type User struct {
	ID             int64     `gorm:"primaryKey"`
	Email          string    `gorm:"uniqueIndex;size:256;not null"`
	HashedPassword string    `gorm:"size:128;not null"`
	Role           Role      `gorm:"column:type;size:16;not null;default:USER"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}
