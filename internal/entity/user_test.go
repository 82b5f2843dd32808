package entity_test

import (
	"context"
	"errors"
	"testing"

	"nonogram/internal/entity"
	"nonogram/internal/errs"
	"nonogram/internal/models"

	. "github.com/smartystreets/goconvey/convey"
)

func TestUser(t *testing.T) {
	Convey("Given a user factory", t, func() {
		ctx := context.Background()
		ds := newSpyStore()
		rec := &errs.Recorder{}
		f := entity.NewFactory(ds, rec)

		Convey("A user needs an id and a username", func() {
			_, err := f.NewUser(models.RawUser{Username: "alice"})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			_, err = f.NewUser(models.RawUser{ID: "u1"})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
		})

		Convey("Given a user with scores on two levels", func() {
			So(ds.UpsertUser(ctx, &models.User{ID: "u1", Username: "alice"}), ShouldBeNil)
			So(ds.UpsertUser(ctx, &models.User{ID: "u2", Username: "bob"}), ShouldBeNil)
			a := &models.Level{Name: "A", Grid: models.GridJSON(`[[{"status":1}]]`), Size: "1x1"}
			b := &models.Level{Name: "B", Grid: models.GridJSON(`[[{"status":1}]]`), Size: "1x1"}
			So(ds.CreateLevel(ctx, a), ShouldBeNil)
			So(ds.CreateLevel(ctx, b), ShouldBeNil)
			for _, s := range []models.Score{
				{UserID: "u1", LevelID: a.ID, Time: 900},
				{UserID: "u1", LevelID: a.ID, Time: 300},
				{UserID: "u1", LevelID: b.ID, Time: 100},
				{UserID: "u2", LevelID: a.ID, Time: 50},
				{UserID: "u1", LevelID: a.ID, Time: 600},
			} {
				s := s
				So(ds.CreateScore(ctx, &s), ShouldBeNil)
			}

			user, err := f.NewUser(models.RawUser{ID: "u1", Username: "alice"})
			So(err, ShouldBeNil)

			Convey("ScoresByLevelID returns only that user's scores on that level, best first", func() {
				scores := user.ScoresByLevelID(ctx, a.ID)
				So(len(scores), ShouldEqual, 3)
				So(scores[0].Time, ShouldEqual, 300)
				So(scores[1].Time, ShouldEqual, 600)
				So(scores[2].Time, ShouldEqual, 900)
				for _, s := range scores {
					So(s.UserID, ShouldEqual, "u1")
				}
			})

			Convey("A datastore failure yields an empty slice and a report", func() {
				ds.fail["FindScores"] = true
				scores := user.ScoresByLevelID(ctx, a.ID)
				So(scores, ShouldNotBeNil)
				So(scores, ShouldBeEmpty)
				last, ok := rec.Last()
				So(ok, ShouldBeTrue)
				So(last.Context.Fn, ShouldEqual, "getScoresByLevelId")
			})
		})
	})
}
