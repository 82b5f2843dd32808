package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"nonogram/internal/entity"
	"nonogram/internal/errs"
	"nonogram/internal/models"
	"nonogram/internal/repository"
	"nonogram/internal/store"
	"nonogram/internal/store/memory"
	"nonogram/internal/worker"

	. "github.com/smartystreets/goconvey/convey"
)

var errDown = errors.New("connection refused")

type fakeQueue struct {
	mu    sync.Mutex
	tasks []worker.ScoreTask
	full  bool
}

func (q *fakeQueue) Submit(task worker.ScoreTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return worker.ErrBackpressure
	}
	q.tasks = append(q.tasks, task)
	return nil
}

type savedCount struct{ n int }

func (s *savedCount) LevelsSaved(n int) { s.n += n }

// flakyStore fails FindLevels when down is set and CreateLevel from the failCreateAt-th call on.
// It counts full level loads in byID.
type flakyStore struct {
	store.Datastore
	down         bool
	creates      int
	failCreateAt int
	byID         int
}

func (f *flakyStore) FindLevelByID(ctx context.Context, id uint) (*models.Level, error) {
	f.byID++
	return f.Datastore.FindLevelByID(ctx, id)
}

func (f *flakyStore) FindLevels(ctx context.Context, q store.LevelQuery) ([]models.Level, error) {
	if f.down {
		return nil, errDown
	}
	return f.Datastore.FindLevels(ctx, q)
}

func (f *flakyStore) CreateLevel(ctx context.Context, level *models.Level) error {
	f.creates++
	if f.failCreateAt > 0 && f.creates >= f.failCreateAt {
		return errDown
	}
	return f.Datastore.CreateLevel(ctx, level)
}

type fixture struct {
	ctx      context.Context
	ds       *flakyStore
	rec      *errs.Recorder
	queue    *fakeQueue
	versions *repository.LocalVersion
	saved    *savedCount
	svc      *LevelService
}

func newFixture() *fixture {
	ds := &flakyStore{Datastore: memory.NewStore()}
	rec := &errs.Recorder{}
	f := entity.NewFactory(ds, rec)
	repo := repository.NewLevelRepository(ds, f, rec)
	fx := &fixture{
		ctx:      context.Background(),
		ds:       ds,
		rec:      rec,
		queue:    &fakeQueue{},
		versions: &repository.LocalVersion{},
		saved:    &savedCount{},
	}
	fx.svc = NewLevelService(repo, f, fx.versions, fx.queue, rec, fx.saved)
	return fx
}

// grid builds a decoded JSON grid from rows of '#', '.' and 'x'
func grid(rows ...string) []interface{} {
	out := make([]interface{}, len(rows))
	for r, row := range rows {
		cells := make([]interface{}, len(row))
		for c, ch := range row {
			status := 0.0
			switch ch {
			case '#':
				status = 1
			case 'x':
				status = 2
			}
			cells[c] = map[string]interface{}{"status": status}
		}
		out[r] = cells
	}
	return out
}

func strPtr(s string) *string { return &s }

func TestSaveLevels(t *testing.T) {
	Convey("Given a level service", t, func() {
		fx := newFixture()

		Convey("A valid batch is saved and bumps the catalog version once", func() {
			out, err := fx.svc.SaveLevels(fx.ctx, []models.RawLevel{
				{Name: "heart", Grid: grid("#.", ".#")},
				{Name: "bar", Grid: grid("###"), AuthorID: strPtr("123")},
			})
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 2)
			So(out[0].ID, ShouldNotEqual, 0)
			So(out[0].Size, ShouldEqual, "2x2")
			So(out[1].Size, ShouldEqual, "1x3")
			So(*out[1].AuthorID, ShouldEqual, "123")

			version, _ := fx.svc.CatalogVersion(fx.ctx)
			So(version, ShouldEqual, 1)
			So(fx.saved.n, ShouldEqual, 2)
		})

		Convey("One malformed entry rejects the batch before any write", func() {
			_, err := fx.svc.SaveLevels(fx.ctx, []models.RawLevel{
				{Name: "ok", Grid: grid("#.")},
				{Name: "ragged", Grid: grid("#.", "#")},
				{Name: "also ok", Grid: grid("#")},
			})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			So(fx.ds.creates, ShouldEqual, 0)

			last, ok := fx.rec.Last()
			So(ok, ShouldBeTrue)
			So(last.Context.Message, ShouldEqual, "level 2 of 3")
		})

		Convey("A supplied size is kept", func() {
			out, err := fx.svc.SaveLevels(fx.ctx, []models.RawLevel{{Name: "p", Grid: grid("#.", ".#"), Size: "7x7"}})
			So(err, ShouldBeNil)
			So(out[0].Size, ShouldEqual, "7x7")

			stored, err := fx.svc.GetLevel(fx.ctx, out[0].ID)
			So(err, ShouldBeNil)
			So(stored.Size, ShouldEqual, "7x7")
		})

		Convey("A size that is not rows x columns is rejected", func() {
			_, err := fx.svc.SaveLevels(fx.ctx, []models.RawLevel{{Name: "p", Grid: grid("#."), Size: "custom"}})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "Size")
			So(fx.ds.creates, ShouldEqual, 0)
		})

		Convey("An empty author id is rejected", func() {
			_, err := fx.svc.SaveLevels(fx.ctx, []models.RawLevel{{Name: "x", Grid: grid("#"), AuthorID: strPtr("")}})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			So(fx.ds.creates, ShouldEqual, 0)
		})

		Convey("An empty batch is rejected", func() {
			_, err := fx.svc.SaveLevels(fx.ctx, []models.RawLevel{})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			So(strings.Contains(err.Error(), "at least one level is required"), ShouldBeTrue)
		})

		Convey("A write failure keeps earlier levels and still bumps the version", func() {
			fx.ds.failCreateAt = 2
			_, err := fx.svc.SaveLevels(fx.ctx, []models.RawLevel{
				{Name: "first", Grid: grid("#")},
				{Name: "second", Grid: grid("#")},
			})
			So(errors.Is(err, errs.ErrPersistence), ShouldBeTrue)
			So(strings.Contains(err.Error(), "level 2 of 2 (second)"), ShouldBeTrue)
			So(fx.saved.n, ShouldEqual, 1)

			version, _ := fx.svc.CatalogVersion(fx.ctx)
			So(version, ShouldEqual, 1)
		})
	})
}

func TestGetLevels(t *testing.T) {
	Convey("Given stored levels", t, func() {
		fx := newFixture()
		So(fx.ds.UpsertUser(fx.ctx, &models.User{ID: "u1", Username: "alice"}), ShouldBeNil)
		_, err := fx.svc.SaveLevels(fx.ctx, []models.RawLevel{
			{Name: "a", Grid: grid("#.", ".#")},
			{Name: "b", Grid: grid("#.#", ".#.", "#.#")},
		})
		So(err, ShouldBeNil)

		Convey("Levels are formatted", func() {
			out, err := fx.svc.GetLevels(fx.ctx, models.Filters{Page: 1, Size: "3x3"}, "")
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 1)
			So(out[0].Name, ShouldEqual, "b")
			So(out[0].Grid[0][0].Status, ShouldEqual, models.CellFilled)
		})

		Convey("No match yields nil", func() {
			out, err := fx.svc.GetLevels(fx.ctx, models.Filters{Page: 1, Size: "9x9"}, "")
			So(err, ShouldBeNil)
			So(out, ShouldBeNil)
		})

		Convey("Client errors are returned", func() {
			_, err := fx.svc.GetLevels(fx.ctx, models.Filters{Page: 1, IsCompleted: new(bool)}, "")
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)

			_, err = fx.svc.GetLevels(fx.ctx, models.Filters{Page: 1}, "ghost")
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
		})

		Convey("Datastore failures degrade to nil", func() {
			fx.ds.down = true
			out, err := fx.svc.GetLevels(fx.ctx, models.Filters{Page: 1}, "u1")
			So(err, ShouldBeNil)
			So(out, ShouldBeNil)
			So(len(fx.rec.Reports()), ShouldBeGreaterThan, 0)
		})
	})
}

func TestLevelLifecycle(t *testing.T) {
	Convey("Given a stored level and user", t, func() {
		fx := newFixture()
		So(fx.ds.UpsertUser(fx.ctx, &models.User{ID: "u1", Username: "alice"}), ShouldBeNil)
		out, err := fx.svc.SaveLevels(fx.ctx, []models.RawLevel{{Name: "a", Grid: grid("#.", ".#")}})
		So(err, ShouldBeNil)
		id := out[0].ID

		Convey("GetLevel returns it and rejects unknown ids", func() {
			level, err := fx.svc.GetLevel(fx.ctx, id)
			So(err, ShouldBeNil)
			So(level.Name, ShouldEqual, "a")

			_, err = fx.svc.GetLevel(fx.ctx, id+100)
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
			_, err = fx.svc.GetLevel(fx.ctx, 0)
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
		})

		Convey("DeleteLevel hides the level from reads", func() {
			So(fx.svc.DeleteLevel(fx.ctx, id), ShouldBeNil)

			_, err := fx.svc.GetLevel(fx.ctx, id)
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
			listed, _ := fx.svc.GetLevels(fx.ctx, models.Filters{Page: 1}, "")
			So(listed, ShouldBeNil)
			So(errors.Is(fx.svc.DeleteLevel(fx.ctx, id), errs.ErrNotFound), ShouldBeTrue)

			version, _ := fx.svc.CatalogVersion(fx.ctx)
			So(version, ShouldEqual, 2)
		})

		Convey("UpdateLevel replaces the level and bumps the version", func() {
			updated, err := fx.svc.UpdateLevel(fx.ctx, id, models.RawLevel{Name: "b", Grid: grid("###", "..."), AuthorID: strPtr("7")})
			So(err, ShouldBeNil)
			So(updated.ID, ShouldEqual, id)
			So(updated.Name, ShouldEqual, "b")
			So(updated.Size, ShouldEqual, "2x3")
			So(updated.Grid[0][2].Status, ShouldEqual, models.CellFilled)
			So(*updated.AuthorID, ShouldEqual, "7")

			version, _ := fx.svc.CatalogVersion(fx.ctx)
			So(version, ShouldEqual, 2)

			Convey("An update without an author keeps the current one", func() {
				again, err := fx.svc.UpdateLevel(fx.ctx, id, models.RawLevel{Name: "c", Grid: grid("#")})
				So(err, ShouldBeNil)
				So(again.Name, ShouldEqual, "c")
				So(again.Size, ShouldEqual, "1x1")
				So(*again.AuthorID, ShouldEqual, "7")
			})
		})

		Convey("UpdateLevel validates input and needs a live level", func() {
			_, err := fx.svc.UpdateLevel(fx.ctx, id, models.RawLevel{Name: "ragged", Grid: grid("#.", "#")})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			_, err = fx.svc.UpdateLevel(fx.ctx, id, models.RawLevel{Name: "x", Grid: grid("#"), Size: "big"})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			_, err = fx.svc.UpdateLevel(fx.ctx, 0, models.RawLevel{Name: "x", Grid: grid("#")})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			_, err = fx.svc.UpdateLevel(fx.ctx, id+100, models.RawLevel{Name: "x", Grid: grid("#")})
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)

			So(fx.svc.DeleteLevel(fx.ctx, id), ShouldBeNil)
			_, err = fx.svc.UpdateLevel(fx.ctx, id, models.RawLevel{Name: "x", Grid: grid("#")})
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)

			level, err := fx.ds.Datastore.FindLevelByID(fx.ctx, id)
			So(err, ShouldBeNil)
			So(level.Name, ShouldEqual, "a")
		})

		Convey("SubmitScore checks the level without loading its scores", func() {
			fx.ds.byID = 0
			So(fx.svc.SubmitScore(fx.ctx, models.ProgressRequest{LevelID: id, UserID: "u1", Time: 4200}), ShouldBeNil)
			So(fx.ds.byID, ShouldEqual, 0)

			So(fx.svc.DeleteLevel(fx.ctx, id), ShouldBeNil)
			err := fx.svc.SubmitScore(fx.ctx, models.ProgressRequest{LevelID: id, UserID: "u1", Time: 4200})
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
		})

		Convey("SubmitScore queues a valid completion", func() {
			So(fx.svc.SubmitScore(fx.ctx, models.ProgressRequest{LevelID: id, UserID: "u1", Time: 4200}), ShouldBeNil)
			So(len(fx.queue.tasks), ShouldEqual, 1)
			So(fx.queue.tasks[0], ShouldResemble, worker.ScoreTask{LevelID: id, UserID: "u1", Time: 4200})
		})

		Convey("SubmitScore rejects bad input before queueing", func() {
			err := fx.svc.SubmitScore(fx.ctx, models.ProgressRequest{LevelID: id, UserID: "u1", Time: 0})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)

			err = fx.svc.SubmitScore(fx.ctx, models.ProgressRequest{LevelID: id + 100, UserID: "u1", Time: 10})
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)

			err = fx.svc.SubmitScore(fx.ctx, models.ProgressRequest{LevelID: id, UserID: "ghost", Time: 10})
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)

			So(fx.queue.tasks, ShouldBeEmpty)
		})

		Convey("SubmitScore surfaces backpressure", func() {
			fx.queue.full = true
			err := fx.svc.SubmitScore(fx.ctx, models.ProgressRequest{LevelID: id, UserID: "u1", Time: 10})
			So(errors.Is(err, ErrBackpressure), ShouldBeTrue)
		})

		Convey("GetUserScores lists the user's times best first", func() {
			So(fx.ds.CreateScore(fx.ctx, &models.Score{UserID: "u1", LevelID: id, Time: 900}), ShouldBeNil)
			So(fx.ds.CreateScore(fx.ctx, &models.Score{UserID: "u1", LevelID: id, Time: 300}), ShouldBeNil)

			scores, err := fx.svc.GetUserScores(fx.ctx, "u1", id)
			So(err, ShouldBeNil)
			So(len(scores), ShouldEqual, 2)
			So(scores[0].Time, ShouldEqual, 300)

			_, err = fx.svc.GetUserScores(fx.ctx, "ghost", id)
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
		})

		Convey("HealthCheck pings the datastore", func() {
			So(fx.svc.HealthCheck(fx.ctx), ShouldBeNil)
		})
	})
}
