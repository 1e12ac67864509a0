package model

type Role string

const (
	RoleStudent   Role = "student"
	RoleTherapist Role = "therapist"
	RoleAdmin     Role = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

type User struct {
	Base
	Email  string     `db:"email" json:"email"`
	Name   string     `db:"name" json:"name"`
	Role   Role       `db:"role" json:"role"`
	Status UserStatus `db:"status" json:"status"`
}
