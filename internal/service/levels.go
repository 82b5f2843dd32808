package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"nonogram/internal/entity"
	"nonogram/internal/errs"
	"nonogram/internal/models"
	"nonogram/internal/repository"
	"nonogram/internal/validate"
	"nonogram/internal/worker"

	"github.com/go-playground/validator/v10"
)

// ErrBackpressure is returned by SubmitScore when the worker pool cannot take more work
var ErrBackpressure = worker.ErrBackpressure

// ScoreQueue accepts score submissions for asynchronous persistence
type ScoreQueue interface {
	Submit(task worker.ScoreTask) error
}

// Recorder receives service level events
type Recorder interface {
	LevelsSaved(n int)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// LevelService handles business logic for levels and scores
type LevelService struct {
	repo      *repository.LevelRepository
	entities  *entity.Factory
	versions  repository.VersionCounter
	queue     ScoreQueue
	reporter  errs.Reporter
	recorder  Recorder
	validator *validator.Validate
	now       func() time.Time
}

// NewLevelService creates a new level service. A nil recorder is allowed.
func NewLevelService(
	repo *repository.LevelRepository,
	entities *entity.Factory,
	versions repository.VersionCounter,
	queue ScoreQueue,
	reporter errs.Reporter,
	recorder Recorder,
) *LevelService {
	return &LevelService{
		repo:      repo,
		entities:  entities,
		versions:  versions,
		queue:     queue,
		reporter:  reporter,
		recorder:  recorder,
		validator: validate.NewValidator(),
		now:       time.Now,
	}
}

func (s *LevelService) report(fn, message string, err error) error {
	return s.reporter.Report(errs.Context{File: "LevelService", Fn: fn, Message: message}, err)
}

// GetLevels returns one page of formatted levels. Caller mistakes come back as errors;
// anything else has already been reported and yields an empty result.
func (s *LevelService) GetLevels(ctx context.Context, filters models.Filters, userID string) ([]models.FormattedLevel, error) {
	levels, err := s.repo.GetLevels(ctx, filters, userID)
	if err != nil {
		if errs.IsClient(err) {
			return nil, err
		}
		s.report("getLevels", "filters value: "+describe(filters), err)
		return nil, nil
	}
	if len(levels) == 0 {
		return nil, nil
	}

	out := make([]models.FormattedLevel, len(levels))
	for i, level := range levels {
		out[i] = level.Properties()
	}
	return out, nil
}

// GetLevel returns a single level with all of its scores
func (s *LevelService) GetLevel(ctx context.Context, id uint) (*models.FormattedLevel, error) {
	if id == 0 {
		return nil, errs.Validation("level id is required")
	}
	level, err := s.repo.GetLevelByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if level == nil || level.Properties().DeletedAt != nil {
		return nil, errs.NotFound("level %d not found", id)
	}
	out := level.Properties()
	return &out, nil
}

// SaveLevels validates every input and builds every level before the first write, so one bad
// entry rejects the whole batch. A supplied size is kept, otherwise it is derived from the grid.
// Writes are sequential and stop at the first failure; levels written before it stay saved.
func (s *LevelService) SaveLevels(ctx context.Context, raws []models.RawLevel) ([]models.FormattedLevel, error) {
	levels := make([]*entity.Level, 0, len(raws))
	for i, raw := range raws {
		if err := validate.Struct(s.validator, &raw); err != nil {
			return nil, s.report("saveLevels", fmt.Sprintf("level %d of %d", i+1, len(raws)), err)
		}
		raw.ID = 0
		level, err := s.entities.NewLevel(raw)
		if err != nil {
			return nil, s.report("saveLevels", fmt.Sprintf("level %d of %d", i+1, len(raws)), err)
		}
		levels = append(levels, level)
	}

	err := s.repo.SaveLevels(ctx, levels)

	saved := 0
	for _, level := range levels {
		if level.ID() != 0 {
			saved++
		}
	}
	if saved > 0 {
		if s.recorder != nil {
			s.recorder.LevelsSaved(saved)
		}
		s.bumpVersion(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]models.FormattedLevel, len(levels))
	for i, level := range levels {
		out[i] = level.Properties()
	}
	return out, nil
}

// UpdateLevel replaces the name, grid, size and author of a live level. The input is validated
// like a new level; the author is kept when none is given and the size is derived from the
// new grid when none is given.
func (s *LevelService) UpdateLevel(ctx context.Context, id uint, raw models.RawLevel) (*models.FormattedLevel, error) {
	if id == 0 {
		return nil, errs.Validation("level id is required")
	}
	message := fmt.Sprintf("id=%d", id)
	if err := validate.Struct(s.validator, &raw); err != nil {
		return nil, s.report("updateLevel", message, err)
	}

	current, err := s.repo.GetLevelByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil || current.Properties().DeletedAt != nil {
		return nil, errs.NotFound("level %d not found", id)
	}
	props := current.Properties()

	raw.ID = id
	raw.CreatedAt = props.CreatedAt
	raw.UpdatedAt = props.UpdatedAt
	raw.DeletedAt = nil
	if raw.AuthorID == nil {
		raw.AuthorID = props.AuthorID
	}
	level, err := s.entities.NewLevel(raw)
	if err != nil {
		return nil, s.report("updateLevel", message, err)
	}

	level.Update(ctx)
	s.bumpVersion(ctx)
	return s.GetLevel(ctx, id)
}

// DeleteLevel soft-deletes a level. The purger removes it for good once the retention
// period has passed.
func (s *LevelService) DeleteLevel(ctx context.Context, id uint) error {
	if id == 0 {
		return errs.Validation("level id is required")
	}
	level, err := s.repo.GetLevelByID(ctx, id)
	if err != nil {
		return err
	}
	if level == nil || level.Properties().DeletedAt != nil {
		return errs.NotFound("level %d not found", id)
	}

	level.UpdateFields(ctx, map[string]interface{}{"deleted_at": s.now()})
	s.bumpVersion(ctx)
	return nil
}

// SubmitScore validates a completion time and queues it for persistence
func (s *LevelService) SubmitScore(ctx context.Context, req models.ProgressRequest) error {
	if err := validate.Struct(s.validator, &req); err != nil {
		return err
	}
	if _, err := s.entities.NewScore(models.RawScore{Time: req.Time, UserID: req.UserID, LevelID: req.LevelID}); err != nil {
		return err
	}

	exists, err := s.repo.LevelExists(ctx, req.LevelID)
	if err != nil {
		return err
	}
	if !exists {
		return errs.NotFound("level %d not found", req.LevelID)
	}
	if _, err := s.repo.GetUser(ctx, req.UserID); err != nil {
		return err
	}

	err = s.queue.Submit(worker.ScoreTask{LevelID: req.LevelID, UserID: req.UserID, Time: req.Time})
	if err != nil && !errors.Is(err, ErrBackpressure) {
		return s.report("submitScore", fmt.Sprintf("levelId=%d userId=%s", req.LevelID, req.UserID), err)
	}
	return err
}

// GetUserScores returns the times of a user on a level, best first
func (s *LevelService) GetUserScores(ctx context.Context, userID string, levelID uint) ([]models.FormattedScore, error) {
	if userID == "" || levelID == 0 {
		return nil, errs.Validation("userId and levelId are required")
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.ScoresByLevelID(ctx, levelID), nil
}

// CatalogVersion returns the current level catalog version
func (s *LevelService) CatalogVersion(ctx context.Context) (int64, error) {
	return s.versions.GetCatalogVersion(ctx)
}

// HealthCheck checks the datastore and, when it can be pinged, the version store
func (s *LevelService) HealthCheck(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("datastore health check failed: %w", err)
	}
	if p, ok := s.versions.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("redis health check failed: %w", err)
		}
	}
	return nil
}

func (s *LevelService) bumpVersion(ctx context.Context) {
	version, err := s.versions.BumpCatalogVersion(ctx)
	if err != nil {
		s.report("bumpVersion", "", err)
		return
	}
	log.Printf("Level catalog version is now %d", version)
}

func describe(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
