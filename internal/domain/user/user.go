package user

import (
	"errors"
	"time"
)

const (
	RoleStudent     = "student"
	RoleCoordinator = "coordinator"
	RoleAdmin       = "admin"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailAlreadyUsed = errors.New("email already in use")
)

type User struct {
	ID           string    `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"passwordHash"` // never expose hash in JSON
	Name         string    `json:"name" bson:"name"`
	Department   string    `json:"department" bson:"department"`
	Role         string    `json:"role" bson:"role"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	ID         string
	Email      string
	Name       string
	Role       string
	Department string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (u User) Principal() Principal {
	return Principal{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, Department: u.Department}
}

func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleCoordinator, RoleAdmin:
		return true
	default:
		return false
	}
}
