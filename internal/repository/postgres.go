package repository

import (
	"context"
	"errors"
	"fmt"

	"nonogram/internal/models"
	"nonogram/internal/store"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// byTime orders scores best first; the column name is quoted since time is a keyword
var byTime = clause.OrderByColumn{Column: clause.Column{Name: "time"}}

// PostgresRepository implements store.Datastore on top of GORM
type PostgresRepository struct {
	db *gorm.DB
}

var _ store.Datastore = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new Postgres repository
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// DB exposes the underlying handle for ad hoc queries
func (r *PostgresRepository) DB() *gorm.DB { return r.db }

// CreateLevel inserts a level without its associations
func (r *PostgresRepository) CreateLevel(ctx context.Context, level *models.Level) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(level).Error
}

// UpdateLevel updates the given columns of a level
func (r *PostgresRepository) UpdateLevel(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Level{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("level %d not found", id)
	}
	return nil
}

// DeleteLevel hard-deletes a level and its scores
func (r *PostgresRepository) DeleteLevel(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("level_id = ?", id).Delete(&models.Score{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Level{}, id).Error
	})
}

// FindLevels retrieves a page of levels matching the query
func (r *PostgresRepository) FindLevels(ctx context.Context, q store.LevelQuery) ([]models.Level, error) {
	tx := r.db.WithContext(ctx).Model(&models.Level{})

	if q.DeletedBefore != nil {
		tx = tx.Where("deleted_at IS NOT NULL AND deleted_at < ?", *q.DeletedBefore)
	} else {
		tx = tx.Where("deleted_at IS NULL")
	}
	if q.Size != "" {
		tx = tx.Where(map[string]interface{}{"size": q.Size})
	}
	if q.CompletedBy != "" {
		tx = tx.Where("EXISTS (SELECT 1 FROM scores WHERE scores.level_id = levels.id AND scores.user_id = ?)", q.CompletedBy)
	}
	if q.IncludeScoresOf != "" {
		userID := q.IncludeScoresOf
		tx = tx.Preload("Scores", func(db *gorm.DB) *gorm.DB {
			return db.Where("user_id = ?", userID).Order(byTime)
		})
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var levels []models.Level
	err := tx.Order("id ASC").Find(&levels).Error
	return levels, err
}

// FindLevelByID retrieves a level with all of its scores, best time first
func (r *PostgresRepository) FindLevelByID(ctx context.Context, id uint) (*models.Level, error) {
	var level models.Level
	err := r.db.WithContext(ctx).
		Preload("Scores", func(db *gorm.DB) *gorm.DB {
			return db.Order(byTime)
		}).
		First(&level, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &level, nil
}

// LevelExists checks for a live level without loading its scores
func (r *PostgresRepository) LevelExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Level{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// CreateScore inserts a score without touching the referenced user
func (r *PostgresRepository) CreateScore(ctx context.Context, score *models.Score) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(score).Error
}

// DeleteScore removes a score
func (r *PostgresRepository) DeleteScore(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Score{}, id).Error
}

// FindScores retrieves scores ordered by ascending time
func (r *PostgresRepository) FindScores(ctx context.Context, q store.ScoreQuery) ([]models.Score, error) {
	tx := r.db.WithContext(ctx).Model(&models.Score{})
	if q.LevelID != 0 {
		tx = tx.Where("level_id = ?", q.LevelID)
	}
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}

	var scores []models.Score
	err := tx.Order(byTime).Order("id ASC").Find(&scores).Error
	return scores, err
}

// UpsertUser creates or updates a user in PostgreSQL
// Uses ON CONFLICT to handle upserts efficiently
func (r *PostgresRepository) UpsertUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "avatar", "updated_at"}),
	}).Create(user).Error
}

// FindUserByID retrieves a user, nil when absent
func (r *PostgresRepository) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// CountLevels returns the number of live levels
func (r *PostgresRepository) CountLevels(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Level{}).Where("deleted_at IS NULL").Count(&count).Error
	return count, err
}

// Ping checks if database is reachable
func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs database migrations
func (r *PostgresRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.User{}, &models.Level{}, &models.Score{})
}
