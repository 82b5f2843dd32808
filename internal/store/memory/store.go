// Package memory is a Datastore kept in process memory, for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nonogram/internal/models"
	"nonogram/internal/store"
)

// Store implements store.Datastore over maps guarded by a mutex
type Store struct {
	mu          sync.RWMutex
	levels      map[uint]models.Level
	scores      map[uint]models.Score
	users       map[string]models.User
	nextLevelID uint
	nextScoreID uint
	now         func() time.Time
}

var _ store.Datastore = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		levels: make(map[uint]models.Level),
		scores: make(map[uint]models.Score),
		users:  make(map[string]models.User),
		now:    time.Now,
	}
}

// CreateLevel implements store.Datastore
func (s *Store) CreateLevel(ctx context.Context, level *models.Level) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLevelID++
	now := s.now()
	level.ID = s.nextLevelID
	level.CreatedAt = now
	level.UpdatedAt = now

	row := *level
	row.Grid = append(models.GridJSON(nil), level.Grid...)
	row.Scores = nil
	s.levels[row.ID] = row
	return nil
}

// UpdateLevel implements store.Datastore. Keys are column names.
func (s *Store) UpdateLevel(ctx context.Context, id uint, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.levels[id]
	if !ok {
		return fmt.Errorf("level %d not found", id)
	}
	for key, value := range fields {
		if err := assign(&row, key, value); err != nil {
			return err
		}
	}
	row.UpdatedAt = s.now()
	s.levels[id] = row
	return nil
}

func assign(row *models.Level, key string, value interface{}) error {
	switch key {
	case "name":
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("name: unexpected %T", value)
		}
		row.Name = v
	case "size":
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("size: unexpected %T", value)
		}
		row.Size = v
	case "grid":
		switch v := value.(type) {
		case models.GridJSON:
			row.Grid = append(models.GridJSON(nil), v...)
		case []byte:
			row.Grid = append(models.GridJSON(nil), v...)
		case string:
			row.Grid = models.GridJSON(v)
		default:
			return fmt.Errorf("grid: unexpected %T", value)
		}
	case "author_id":
		switch v := value.(type) {
		case nil:
			row.AuthorID = nil
		case *string:
			row.AuthorID = v
		case string:
			row.AuthorID = &v
		default:
			return fmt.Errorf("author_id: unexpected %T", value)
		}
	case "deleted_at":
		switch v := value.(type) {
		case nil:
			row.DeletedAt = nil
		case *time.Time:
			row.DeletedAt = v
		case time.Time:
			row.DeletedAt = &v
		default:
			return fmt.Errorf("deleted_at: unexpected %T", value)
		}
	case "difficulty":
		switch v := value.(type) {
		case nil:
			row.Difficulty = nil
		case *int:
			row.Difficulty = v
		case int:
			row.Difficulty = &v
		default:
			return fmt.Errorf("difficulty: unexpected %T", value)
		}
	default:
		return fmt.Errorf("unknown level column %q", key)
	}
	return nil
}

// DeleteLevel implements store.Datastore. Scores of the level are removed with it.
func (s *Store) DeleteLevel(ctx context.Context, id uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.levels, id)
	for scoreID, score := range s.scores {
		if score.LevelID == id {
			delete(s.scores, scoreID)
		}
	}
	return nil
}

// FindLevels implements store.Datastore
func (s *Store) FindLevels(ctx context.Context, q store.LevelQuery) ([]models.Level, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint, 0, len(s.levels))
	for id := range s.levels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	matched := make([]models.Level, 0)
	for _, id := range ids {
		row := s.levels[id]
		if q.DeletedBefore != nil {
			if row.DeletedAt == nil || !row.DeletedAt.Before(*q.DeletedBefore) {
				continue
			}
		} else if row.DeletedAt != nil {
			continue
		}
		if q.Size != "" && row.Size != q.Size {
			continue
		}
		if q.CompletedBy != "" && len(s.scoresLocked(row.ID, q.CompletedBy)) == 0 {
			continue
		}
		matched = append(matched, row)
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = matched[:0]
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]models.Level, len(matched))
	for i, row := range matched {
		out[i] = copyLevel(row)
		if q.IncludeScoresOf != "" {
			out[i].Scores = s.scoresLocked(row.ID, q.IncludeScoresOf)
		}
	}
	return out, nil
}

// FindLevelByID implements store.Datastore
func (s *Store) FindLevelByID(ctx context.Context, id uint) (*models.Level, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.levels[id]
	if !ok {
		return nil, nil
	}
	level := copyLevel(row)
	level.Scores = s.scoresLocked(id, "")
	return &level, nil
}

// LevelExists implements store.Datastore
func (s *Store) LevelExists(ctx context.Context, id uint) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.levels[id]
	return ok && row.DeletedAt == nil, nil
}

// CreateScore implements store.Datastore. Level and user references are enforced like foreign keys.
func (s *Store) CreateScore(ctx context.Context, score *models.Score) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.levels[score.LevelID]; !ok {
		return fmt.Errorf("foreign key violation: level %d does not exist", score.LevelID)
	}
	if _, ok := s.users[score.UserID]; !ok {
		return fmt.Errorf("foreign key violation: user %s does not exist", score.UserID)
	}

	s.nextScoreID++
	score.ID = s.nextScoreID
	score.CreatedAt = s.now()
	s.scores[score.ID] = *score
	return nil
}

// DeleteScore implements store.Datastore
func (s *Store) DeleteScore(ctx context.Context, id uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.scores, id)
	return nil
}

// FindScores implements store.Datastore
func (s *Store) FindScores(ctx context.Context, q store.ScoreQuery) ([]models.Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Score, 0)
	for _, score := range s.scores {
		if q.LevelID != 0 && score.LevelID != q.LevelID {
			continue
		}
		if q.UserID != "" && score.UserID != q.UserID {
			continue
		}
		out = append(out, score)
	}
	sortByTime(out)
	return out, nil
}

// UpsertUser implements store.Datastore
func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		for _, other := range s.users {
			if other.Username == user.Username {
				return fmt.Errorf("unique violation: username %s is taken", user.Username)
			}
		}
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

// FindUserByID implements store.Datastore
func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// Ping implements store.Datastore
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// scoresLocked returns the scores of a level, optionally of one user. Callers hold mu.
func (s *Store) scoresLocked(levelID uint, userID string) []models.Score {
	out := make([]models.Score, 0)
	for _, score := range s.scores {
		if score.LevelID != levelID {
			continue
		}
		if userID != "" && score.UserID != userID {
			continue
		}
		out = append(out, score)
	}
	sortByTime(out)
	return out
}

func sortByTime(scores []models.Score) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Time != scores[j].Time {
			return scores[i].Time < scores[j].Time
		}
		return scores[i].ID < scores[j].ID
	})
}

func copyLevel(row models.Level) models.Level {
	row.Grid = append(models.GridJSON(nil), row.Grid...)
	row.Scores = nil
	return row
}
