package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nonogram/internal/entity"
	"nonogram/internal/errs"
	"nonogram/internal/models"
	"nonogram/internal/store"
	"nonogram/internal/validate"
)

// LevelsPerPage is the page size of level listings
const LevelsPerPage = 12

// LevelRepository maps datastore rows to level entities and filters to queries
type LevelRepository struct {
	store    store.Datastore
	entities *entity.Factory
	reporter errs.Reporter
}

// NewLevelRepository creates a new level repository
func NewLevelRepository(ds store.Datastore, entities *entity.Factory, reporter errs.Reporter) *LevelRepository {
	return &LevelRepository{
		store:    ds,
		entities: entities,
		reporter: reporter,
	}
}

func (r *LevelRepository) report(fn, message string, err error) error {
	return r.reporter.Report(errs.Context{File: "LevelRepository", Fn: fn, Message: message}, err)
}

// FormatLevel rebuilds a level entity from a row. The grid is re-validated since rows
// may predate the current validation rules.
func (r *LevelRepository) FormatLevel(row models.Level) (*entity.Level, error) {
	if !validate.IsValidGrid(row.Grid) {
		return nil, errs.Validation("level %d has an invalid grid", row.ID)
	}

	level, err := r.entities.NewLevel(models.RawLevel{
		ID:        row.ID,
		Name:      row.Name,
		Grid:      row.Grid,
		Size:      row.Size,
		AuthorID:  row.AuthorID,
		CreatedAt: nonZero(row.CreatedAt),
		UpdatedAt: nonZero(row.UpdatedAt),
		DeletedAt: row.DeletedAt,
	})
	if err != nil {
		return nil, err
	}

	if row.Scores == nil {
		return level, nil
	}
	scores := make([]*entity.Score, 0, len(row.Scores))
	for _, s := range row.Scores {
		score, err := r.entities.ScoreFromRow(s)
		if err != nil {
			return nil, fmt.Errorf("score %d of level %d: %w", s.ID, row.ID, err)
		}
		scores = append(scores, score)
	}
	level.SetScores(scores)
	return level, nil
}

// GetLevels returns one page of levels matching filters. isCompleted needs a userID and the
// user must exist; both are checked before the listing query. Datastore failures are reported
// and produce an empty result.
func (r *LevelRepository) GetLevels(ctx context.Context, filters models.Filters, userID string) ([]*entity.Level, error) {
	message := "filters value: " + describe(filters)

	if userID == "" && filters.IsCompleted != nil {
		return nil, r.report("getLevels", message, errs.Validation("userId is required when isCompleted is specified"))
	}

	if userID != "" {
		user, err := r.store.FindUserByID(ctx, userID)
		if err != nil {
			r.report("getLevels", message, errs.Persistence(err))
			return []*entity.Level{}, nil
		}
		if user == nil {
			return nil, r.report("getLevels", message, errs.NotFound("user with id %s not found", userID))
		}
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	q := store.LevelQuery{
		Size:   filters.Size,
		Offset: (page - 1) * LevelsPerPage,
		Limit:  LevelsPerPage,
	}
	if filters.IsCompleted != nil && *filters.IsCompleted {
		q.CompletedBy = userID
		q.IncludeScoresOf = userID
	}

	rows, err := r.store.FindLevels(ctx, q)
	if err != nil {
		r.report("getLevels", message, errs.Persistence(err))
		return []*entity.Level{}, nil
	}

	levels := make([]*entity.Level, 0, len(rows))
	for _, row := range rows {
		level, err := r.FormatLevel(row)
		if err != nil {
			r.report("getLevels", fmt.Sprintf("skipping level %d", row.ID), err)
			continue
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// GetLevelByID returns a level with its scores, or nil when it does not exist or cannot be read
func (r *LevelRepository) GetLevelByID(ctx context.Context, id uint) (*entity.Level, error) {
	message := fmt.Sprintf("id=%d", id)

	row, err := r.store.FindLevelByID(ctx, id)
	if err != nil {
		r.report("getLevelById", message, errs.Persistence(err))
		return nil, nil
	}
	if row == nil {
		return nil, nil
	}

	level, err := r.FormatLevel(*row)
	if err != nil {
		r.report("getLevelById", message, err)
		return nil, nil
	}
	return level, nil
}

// SaveLevels persists levels one after the other and stops at the first failure.
// Levels saved before the failure stay committed.
func (r *LevelRepository) SaveLevels(ctx context.Context, levels []*entity.Level) error {
	if len(levels) == 0 {
		return r.report("saveLevels", "", errs.Validation("at least one level is required"))
	}

	for i, level := range levels {
		if err := level.Save(ctx); err != nil {
			return fmt.Errorf("level %d of %d (%s): %w", i+1, len(levels), level.Name(), err)
		}
	}
	return nil
}

// GetUser returns the user with the given id
func (r *LevelRepository) GetUser(ctx context.Context, id string) (*entity.User, error) {
	row, err := r.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, r.report("getUser", "id="+id, errs.Persistence(err))
	}
	if row == nil {
		return nil, errs.NotFound("user with id %s not found", id)
	}
	return r.entities.UserFromRow(*row)
}

// LevelExists reports whether a live level has the given id. Scores are not loaded.
func (r *LevelRepository) LevelExists(ctx context.Context, id uint) (bool, error) {
	exists, err := r.store.LevelExists(ctx, id)
	if err != nil {
		return false, r.report("levelExists", fmt.Sprintf("id=%d", id), errs.Persistence(err))
	}
	return exists, nil
}

// SaveScore records a completion time on a live level. A score the datastore did not store
// comes back as ErrPersistence; it has already been reported by the score itself.
func (r *LevelRepository) SaveScore(ctx context.Context, levelID uint, userID string, elapsed int64) error {
	message := fmt.Sprintf("levelId=%d userId=%s", levelID, userID)

	exists, err := r.LevelExists(ctx, levelID)
	if err != nil {
		return err
	}
	if !exists {
		return r.report("saveScore", message, errs.NotFound("level %d not found", levelID))
	}

	score, err := r.entities.NewScore(models.RawScore{Time: elapsed, UserID: userID, LevelID: levelID})
	if err != nil {
		return r.report("saveScore", message, err)
	}
	score.Save(ctx)
	if score.ID() == 0 {
		return errs.Persistence(fmt.Errorf("score was not stored (%s)", message))
	}
	return nil
}

// PurgeDeleted hard-deletes levels soft-deleted before the given instant and returns how many
// deletions were attempted. Rows whose grid no longer validates are removed by id.
func (r *LevelRepository) PurgeDeleted(ctx context.Context, before time.Time) int {
	rows, err := r.store.FindLevels(ctx, store.LevelQuery{DeletedBefore: &before})
	if err != nil {
		r.report("purgeDeleted", "before="+before.Format(time.RFC3339), errs.Persistence(err))
		return 0
	}

	attempted := 0
	for _, row := range rows {
		level, err := r.FormatLevel(row)
		if err != nil {
			if err := r.store.DeleteLevel(ctx, row.ID); err != nil {
				r.report("purgeDeleted", fmt.Sprintf("id=%d", row.ID), errs.Persistence(err))
				continue
			}
			attempted++
			continue
		}
		level.Delete(ctx)
		attempted++
	}
	return attempted
}

func nonZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func describe(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Ping checks the underlying datastore
func (r *LevelRepository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}
