package entity

import (
	"context"
	"fmt"
	"time"

	"nonogram/internal/errs"
	"nonogram/internal/models"
	"nonogram/internal/store"
)

// User is a player. It only reads its own scores; it does not own them.
type User struct {
	f *Factory

	id        string
	username  string
	avatar    *string
	createdAt *time.Time
	updatedAt *time.Time
	deletedAt *time.Time
}

// NewUser validates raw and builds a user
func (f *Factory) NewUser(raw models.RawUser) (*User, error) {
	if raw.ID == "" {
		return nil, errs.Validation("user id is required")
	}
	if raw.Username == "" {
		return nil, errs.Validation("user username is required")
	}

	return &User{
		f:         f,
		id:        raw.ID,
		username:  raw.Username,
		avatar:    copyString(raw.Avatar),
		createdAt: copyTime(raw.CreatedAt),
		updatedAt: copyTime(raw.UpdatedAt),
		deletedAt: copyTime(raw.DeletedAt),
	}, nil
}

// UserFromRow builds a user from a persisted row
func (f *Factory) UserFromRow(row models.User) (*User, error) {
	return f.NewUser(models.RawUser{
		ID:        row.ID,
		Username:  row.Username,
		Avatar:    row.Avatar,
		CreatedAt: timePtr(row.CreatedAt),
		UpdatedAt: timePtr(row.UpdatedAt),
		DeletedAt: row.DeletedAt,
	})
}

// ID returns the user id
func (u *User) ID() string { return u.id }

// Username returns the user name
func (u *User) Username() string { return u.username }

// ScoresByLevelID returns the user's scores on a level, best time first. A datastore failure is
// reported and yields an empty slice.
func (u *User) ScoresByLevelID(ctx context.Context, levelID uint) []models.FormattedScore {
	rows, err := u.f.store.FindScores(ctx, store.ScoreQuery{LevelID: levelID, UserID: u.id})
	if err != nil {
		u.f.report("User", "getScoresByLevelId", fmt.Sprintf("levelId=%d", levelID), errs.Persistence(err))
		return []models.FormattedScore{}
	}

	out := make([]models.FormattedScore, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.FormattedScore{
			ID:        row.ID,
			UserID:    row.UserID,
			LevelID:   row.LevelID,
			Time:      row.Time,
			CreatedAt: timePtr(row.CreatedAt),
		})
	}
	return out
}
