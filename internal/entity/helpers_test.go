package entity_test

import (
	"context"
	"errors"
	"sync"

	"nonogram/internal/models"
	"nonogram/internal/store"
	"nonogram/internal/store/memory"
)

var errDB = errors.New("connection refused")

// spyStore counts datastore calls and fails the ones listed in fail
type spyStore struct {
	store.Datastore

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func newSpyStore() *spyStore {
	return &spyStore{
		Datastore: memory.NewStore(),
		calls:     make(map[string]int),
		fail:      make(map[string]bool),
	}
}

func (s *spyStore) hit(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if s.fail[op] {
		return errDB
	}
	return nil
}

func (s *spyStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *spyStore) CreateLevel(ctx context.Context, level *models.Level) error {
	if err := s.hit("CreateLevel"); err != nil {
		return err
	}
	return s.Datastore.CreateLevel(ctx, level)
}

func (s *spyStore) UpdateLevel(ctx context.Context, id uint, fields map[string]interface{}) error {
	if err := s.hit("UpdateLevel"); err != nil {
		return err
	}
	return s.Datastore.UpdateLevel(ctx, id, fields)
}

func (s *spyStore) DeleteLevel(ctx context.Context, id uint) error {
	if err := s.hit("DeleteLevel"); err != nil {
		return err
	}
	return s.Datastore.DeleteLevel(ctx, id)
}

func (s *spyStore) CreateScore(ctx context.Context, score *models.Score) error {
	if err := s.hit("CreateScore"); err != nil {
		return err
	}
	return s.Datastore.CreateScore(ctx, score)
}

func (s *spyStore) DeleteScore(ctx context.Context, id uint) error {
	if err := s.hit("DeleteScore"); err != nil {
		return err
	}
	return s.Datastore.DeleteScore(ctx, id)
}

func (s *spyStore) FindScores(ctx context.Context, q store.ScoreQuery) ([]models.Score, error) {
	if err := s.hit("FindScores"); err != nil {
		return nil, err
	}
	return s.Datastore.FindScores(ctx, q)
}

func cells(rows ...string) []interface{} {
	grid := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		r := make([]interface{}, 0, len(row))
		for _, ch := range row {
			r = append(r, map[string]interface{}{"status": float64(ch - '0')})
		}
		grid = append(grid, r)
	}
	return grid
}
