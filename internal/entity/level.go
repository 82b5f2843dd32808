package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"nonogram/internal/errs"
	"nonogram/internal/models"
	"nonogram/internal/validate"
)

// MaxNameLength is the longest accepted level name, in characters
const MaxNameLength = 32

// Level is a nonogram level. A Level value always holds a valid grid.
type Level struct {
	f *Factory

	id        uint
	name      string
	grid      models.Grid
	size      string
	authorID  *string
	createdAt *time.Time
	updatedAt *time.Time
	deletedAt *time.Time

	scores []*Score
}

// NewLevel validates raw and builds a level. The size is derived from the grid when raw has none
// and is not recomputed afterwards.
func (f *Factory) NewLevel(raw models.RawLevel) (*Level, error) {
	if raw.Name == "" {
		return nil, errs.Validation("level name is required")
	}
	if utf8.RuneCountInString(raw.Name) > MaxNameLength {
		return nil, errs.Validation("level name must be at most %d characters", MaxNameLength)
	}
	if raw.Grid == nil {
		return nil, errs.Validation("level grid is required")
	}
	grid, err := validate.ParseGrid(raw.Grid)
	if err != nil {
		return nil, fmt.Errorf("level: %w", err)
	}

	size := raw.Size
	if size == "" {
		size = validate.GridSize(grid)
	}

	return &Level{
		f:         f,
		id:        raw.ID,
		name:      raw.Name,
		grid:      grid.Clone(),
		size:      size,
		authorID:  copyString(raw.AuthorID),
		createdAt: copyTime(raw.CreatedAt),
		updatedAt: copyTime(raw.UpdatedAt),
		deletedAt: copyTime(raw.DeletedAt),
	}, nil
}

// ID returns the bound id, 0 before the first successful Save
func (l *Level) ID() uint { return l.id }

// Name returns the level name
func (l *Level) Name() string { return l.name }

// Size returns the "<r>x<c>" size string
func (l *Level) Size() string { return l.size }

// Scores returns the attached scores
func (l *Level) Scores() []*Score { return l.scores }

// SetScores replaces the attached scores
func (l *Level) SetScores(scores []*Score) {
	l.scores = scores
}

// Properties returns a snapshot of the level in its client-facing shape
func (l *Level) Properties() models.FormattedLevel {
	out := models.FormattedLevel{
		ID:        l.id,
		Name:      l.name,
		Grid:      l.grid.Clone(),
		Size:      l.size,
		AuthorID:  copyString(l.authorID),
		CreatedAt: copyTime(l.createdAt),
		UpdatedAt: copyTime(l.updatedAt),
		DeletedAt: copyTime(l.deletedAt),
	}
	if l.scores != nil {
		out.Scores = make([]models.FormattedScore, len(l.scores))
		for i, s := range l.scores {
			out.Scores[i] = s.Properties()
		}
	}
	return out
}

// Save inserts the level and binds the generated id and timestamps. Failures are reported
// and returned.
func (l *Level) Save(ctx context.Context) error {
	if l.id != 0 {
		return l.f.report("Level", "save", "", errs.State("level %d is already saved", l.id))
	}

	grid, err := models.EncodeGrid(l.grid)
	if err != nil {
		return l.f.report("Level", "save", "name="+l.name, err)
	}
	row := &models.Level{
		Name:     l.name,
		Grid:     grid,
		Size:     l.size,
		AuthorID: copyString(l.authorID),
	}
	if err := l.f.store.CreateLevel(ctx, row); err != nil {
		return l.f.report("Level", "save", "name="+l.name, errs.Persistence(err))
	}

	l.id = row.ID
	l.createdAt = timePtr(row.CreatedAt)
	l.updatedAt = timePtr(row.UpdatedAt)
	return nil
}

// Update writes every attribute of the level. Failures are reported, never returned.
func (l *Level) Update(ctx context.Context) {
	if l.id == 0 {
		l.f.report("Level", "update", "", errs.State("cannot update a level without an id"))
		return
	}

	grid, err := models.EncodeGrid(l.grid)
	if err != nil {
		l.f.report("Level", "update", "", err)
		return
	}
	fields := map[string]interface{}{
		"name":       l.name,
		"grid":       grid,
		"size":       l.size,
		"author_id":  copyString(l.authorID),
		"deleted_at": copyTime(l.deletedAt),
	}
	if err := l.f.store.UpdateLevel(ctx, l.id, fields); err != nil {
		l.f.report("Level", "update", "", errs.Persistence(err))
	}
}

// UpdateFields writes a subset of columns without re-validating the level. The in-memory
// level is left untouched. Failures are reported, never returned.
func (l *Level) UpdateFields(ctx context.Context, fields map[string]interface{}) {
	message := "fields value: " + describe(fields)
	if l.id == 0 {
		l.f.report("Level", "updateFields", message, errs.State("cannot update a level without an id"))
		return
	}
	if err := l.f.store.UpdateLevel(ctx, l.id, fields); err != nil {
		l.f.report("Level", "updateFields", message, errs.Persistence(err))
	}
}

// Delete removes the level from the datastore. Failures are reported, never returned.
func (l *Level) Delete(ctx context.Context) {
	if l.id == 0 {
		l.f.report("Level", "delete", "", errs.State("cannot delete a level without an id"))
		return
	}
	if err := l.f.store.DeleteLevel(ctx, l.id); err != nil {
		l.f.report("Level", "delete", fmt.Sprintf("id=%d", l.id), errs.Persistence(err))
	}
}

// SaveScore records a completion time of userID on this level. Failures are reported, never returned.
func (l *Level) SaveScore(ctx context.Context, userID string, elapsed int64) {
	if l.id == 0 {
		l.f.report("Level", "saveScore", "", errs.State("cannot save a score without a level id"))
		return
	}
	score, err := l.f.NewScore(models.RawScore{Time: elapsed, UserID: userID, LevelID: l.id})
	if err != nil {
		l.f.report("Level", "saveScore", fmt.Sprintf("levelId=%d", l.id), err)
		return
	}
	score.Save(ctx)
}

func describe(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
