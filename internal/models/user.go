package models

import "time"

// UserRole represents the two portal roles.
type UserRole string

const (
	// RoleFarmer submits harvest procurement requests.
	RoleFarmer UserRole = "FARMER"
	// RoleVAO is the village administrative officer reviewing requests.
	RoleVAO UserRole = "VAO"
)

// User represents a portal account stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Mobile       string    `db:"mobile" json:"mobile"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	Village      string    `db:"village" json:"village"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
