// Package store declares the datastore the domain layer persists through.
package store

import (
	"context"
	"time"

	"nonogram/internal/models"
)

type (
	// LevelQuery selects a page of levels
	LevelQuery struct {
		// Size filters on an exact "<r>x<c>" match when non-empty
		Size string
		// CompletedBy restricts the result to levels scored by this user when non-empty
		CompletedBy string
		// IncludeScoresOf preloads only this user's scores when non-empty
		IncludeScoresOf string
		// DeletedBefore selects soft-deleted levels deleted before this instant instead of live ones
		DeletedBefore *time.Time
		Offset        int
		Limit         int
	}

	// ScoreQuery selects scores, always ordered by ascending time
	ScoreQuery struct {
		LevelID uint
		UserID  string
	}

	// Datastore is the query interface of the relational store
	Datastore interface {
		// CreateLevel inserts level and binds the generated id and timestamps onto it
		CreateLevel(ctx context.Context, level *models.Level) error
		// UpdateLevel applies fields to the level with the given id
		UpdateLevel(ctx context.Context, id uint, fields map[string]interface{}) error
		// DeleteLevel removes the level with the given id
		DeleteLevel(ctx context.Context, id uint) error
		// FindLevels returns the levels matching q ordered by id
		FindLevels(ctx context.Context, q LevelQuery) ([]models.Level, error)
		// FindLevelByID returns the level with its scores, or nil when absent
		FindLevelByID(ctx context.Context, id uint) (*models.Level, error)
		// LevelExists reports whether a level that is not soft-deleted has the given id
		LevelExists(ctx context.Context, id uint) (bool, error)

		// CreateScore inserts score and binds the generated id and timestamp onto it
		CreateScore(ctx context.Context, score *models.Score) error
		// DeleteScore removes the score with the given id
		DeleteScore(ctx context.Context, id uint) error
		// FindScores returns the matching scores ordered by ascending time
		FindScores(ctx context.Context, q ScoreQuery) ([]models.Score, error)

		// UpsertUser creates or updates a user
		UpsertUser(ctx context.Context, user *models.User) error
		// FindUserByID returns the user, or nil when absent
		FindUserByID(ctx context.Context, id string) (*models.User, error)

		Ping(ctx context.Context) error
	}
)
