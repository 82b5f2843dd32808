package models

import (
	"time"
)

// Level is a persisted nonogram level
type Level struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	Name       string     `gorm:"size:32;not null" json:"name"`
	Grid       GridJSON   `gorm:"type:jsonb;not null" json:"grid"`
	Size       string     `gorm:"size:16;not null;index" json:"size"`
	Difficulty *int       `json:"difficulty,omitempty"`
	AuthorID   *string    `gorm:"size:18;index" json:"authorId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	DeletedAt  *time.Time `gorm:"index" json:"deletedAt,omitempty"`
	Scores     []Score    `gorm:"foreignKey:LevelID;constraint:OnDelete:CASCADE" json:"scores,omitempty"`
}

// TableName specifies the table name for GORM
func (Level) TableName() string {
	return "levels"
}

// Score is a persisted completion time of a user on a level
type Score struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    string    `gorm:"size:64;not null;index" json:"userId"`
	LevelID   uint      `gorm:"not null;index" json:"levelId"`
	Time      int64     `gorm:"not null" json:"time"`
	CreatedAt time.Time `json:"createdAt"`
	User      *User     `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for GORM
func (Score) TableName() string {
	return "scores"
}

// RawLevel is a level as submitted by a client or rebuilt from a row.
// Grid is left untyped so any decoded JSON shape reaches the validator.
type RawLevel struct {
	ID        uint        `json:"id,omitempty"`
	Name      string      `json:"name"`
	Grid      interface{} `json:"grid"`
	Size      string      `json:"size,omitempty" validate:"omitempty,level_size"`
	AuthorID  *string     `json:"authorId,omitempty" validate:"omitnil,min=1,max=18"`
	CreatedAt *time.Time  `json:"createdAt,omitempty"`
	UpdatedAt *time.Time  `json:"updatedAt,omitempty"`
	DeletedAt *time.Time  `json:"deletedAt,omitempty"`
}

// RawScore is the unvalidated input used to build a score entity
type RawScore struct {
	ID        uint       `json:"id,omitempty"`
	Time      int64      `json:"time"`
	UserID    string     `json:"userId"`
	LevelID   uint       `json:"levelId"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// FormattedLevel is the client-facing representation of a level
type FormattedLevel struct {
	ID        uint             `json:"id,omitempty"`
	Name      string           `json:"name"`
	Grid      Grid             `json:"grid"`
	Size      string           `json:"size"`
	AuthorID  *string          `json:"authorId,omitempty"`
	CreatedAt *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt *time.Time       `json:"updatedAt,omitempty"`
	DeletedAt *time.Time       `json:"deletedAt,omitempty"`
	Scores    []FormattedScore `json:"scores,omitempty"`
}

// FormattedScore is the client-facing representation of a score
type FormattedScore struct {
	ID        uint       `json:"id,omitempty"`
	UserID    string     `json:"userId"`
	LevelID   uint       `json:"levelId"`
	Time      int64      `json:"time"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// Filters narrows a level listing. A nil IsCompleted means the filter is unset.
type Filters struct {
	Page        int    `json:"page"`
	Size        string `json:"size,omitempty"`
	IsCompleted *bool  `json:"isCompleted,omitempty"`
}

// LevelsQuery holds the raw query string of a level listing request
type LevelsQuery struct {
	Page        int    `query:"page"`
	Size        string `query:"size" validate:"omitempty,level_size"`
	IsCompleted string `query:"isCompleted" validate:"omitempty,oneof=true false"`
	UserID      string `query:"userId" validate:"omitempty,max=64"`
}

// ProgressRequest represents the request payload for recording a completion time
type ProgressRequest struct {
	LevelID uint   `json:"levelId" validate:"required"`
	UserID  string `json:"userId" validate:"required,max=64"`
	Time    int64  `json:"time" validate:"required,min=1"`
}

// LevelsResponse wraps a level listing
type LevelsResponse struct {
	Data []FormattedLevel `json:"data"`
	Page int              `json:"page"`
}
