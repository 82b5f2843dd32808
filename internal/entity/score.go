package entity

import (
	"context"
	"fmt"
	"time"

	"nonogram/internal/errs"
	"nonogram/internal/models"
)

// Score is a completion time of a user on a level. Scores are never updated.
type Score struct {
	f *Factory

	id        uint
	time      int64
	userID    string
	levelID   uint
	createdAt *time.Time
}

// NewScore validates raw and builds a score. Required fields are checked in the
// order time, userId, levelId.
func (f *Factory) NewScore(raw models.RawScore) (*Score, error) {
	if raw.Time == 0 {
		return nil, errs.Validation("score time is required")
	}
	if raw.Time < 0 {
		return nil, errs.Validation("score time must be positive")
	}
	if raw.UserID == "" {
		return nil, errs.Validation("score userId is required")
	}
	if raw.LevelID == 0 {
		return nil, errs.Validation("score levelId is required")
	}

	return &Score{
		f:         f,
		id:        raw.ID,
		time:      raw.Time,
		userID:    raw.UserID,
		levelID:   raw.LevelID,
		createdAt: copyTime(raw.CreatedAt),
	}, nil
}

// ScoreFromRow builds a score from a persisted row
func (f *Factory) ScoreFromRow(row models.Score) (*Score, error) {
	return f.NewScore(models.RawScore{
		ID:        row.ID,
		Time:      row.Time,
		UserID:    row.UserID,
		LevelID:   row.LevelID,
		CreatedAt: timePtr(row.CreatedAt),
	})
}

// ID returns the bound id, 0 before the score is saved
func (s *Score) ID() uint { return s.id }

// Properties returns the score in its client-facing shape
func (s *Score) Properties() models.FormattedScore {
	return models.FormattedScore{
		ID:        s.id,
		UserID:    s.userID,
		LevelID:   s.levelID,
		Time:      s.time,
		CreatedAt: copyTime(s.createdAt),
	}
}

// Save inserts the score and binds its id. Failures are reported, never returned.
func (s *Score) Save(ctx context.Context) {
	row := &models.Score{
		UserID:  s.userID,
		LevelID: s.levelID,
		Time:    s.time,
	}
	if err := s.f.store.CreateScore(ctx, row); err != nil {
		s.f.report("Score", "save", fmt.Sprintf("levelId=%d userId=%s", s.levelID, s.userID), errs.Persistence(err))
		return
	}
	s.id = row.ID
	s.createdAt = timePtr(row.CreatedAt)
}

// Delete removes the score. Failures are reported, never returned.
func (s *Score) Delete(ctx context.Context) {
	if s.id == 0 {
		s.f.report("Score", "delete", "", errs.State("cannot delete a score without an id"))
		return
	}
	if err := s.f.store.DeleteScore(ctx, s.id); err != nil {
		s.f.report("Score", "delete", fmt.Sprintf("id=%d", s.id), errs.Persistence(err))
	}
}
