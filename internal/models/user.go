package models

import (
	"time"
)

// User represents a player of the nonogram game
type User struct {
	ID        string     `gorm:"primaryKey;size:64" json:"id"`
	Username  string     `gorm:"uniqueIndex;not null;size:50" json:"username"`
	Avatar    *string    `json:"avatar,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `gorm:"index" json:"deletedAt,omitempty"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// RawUser is the unvalidated input used to build a user entity
type RawUser struct {
	ID        string
	Username  string
	Avatar    *string
	CreatedAt *time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Input   interface{} `json:"input,omitempty"`
}
