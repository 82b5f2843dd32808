package config

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

var keys = []string{
	"STORAGE_TYPE", "DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"REDIS_ENABLED", "REDIS_HOST", "REDIS_PORT", "REDIS_USERNAME", "REDIS_PASSWORD", "REDIS_DB",
	"BACKEND_PORT", "WORKER_COUNT", "WORKER_QUEUE_SIZE", "PURGE_INTERVAL", "PURGE_RETENTION", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestFromEnv(t *testing.T) {
	Convey("Given an empty environment", t, func() {
		clearEnv(t)

		cfg, err := FromEnv()
		So(err, ShouldBeNil)

		Convey("Defaults apply", func() {
			So(cfg.Database.StorageType, ShouldEqual, StoragePostgres)
			So(cfg.GetDSN(), ShouldEqual, "host=localhost port=5432 user=postgres password= dbname=nonogram sslmode=disable")
			So(cfg.Redis.Enabled, ShouldBeTrue)
			So(cfg.GetRedisAddr(), ShouldEqual, "localhost:6379")
			So(cfg.Server.Port, ShouldEqual, 8000)
			So(cfg.Worker.Count, ShouldEqual, 10)
			So(cfg.Worker.QueueSize, ShouldEqual, 1000)
			So(cfg.Purge.Interval, ShouldEqual, time.Hour)
			So(cfg.Purge.Retention, ShouldEqual, 20*24*time.Hour)
			So(cfg.LogLevel, ShouldEqual, "info")
		})
	})

	Convey("Given overrides", t, func() {
		clearEnv(t)
		t.Setenv("STORAGE_TYPE", "Memory")
		t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/levels")
		t.Setenv("REDIS_ENABLED", "false")
		t.Setenv("WORKER_COUNT", "4")
		t.Setenv("PURGE_RETENTION", "48h")
		t.Setenv("BACKEND_PORT", "not-a-number")

		cfg, err := FromEnv()
		So(err, ShouldBeNil)
		So(cfg.Database.StorageType, ShouldEqual, StorageMemory)
		So(cfg.GetDSN(), ShouldEqual, "postgres://u:p@db:5432/levels")
		So(cfg.Redis.Enabled, ShouldBeFalse)
		So(cfg.Worker.Count, ShouldEqual, 4)
		So(cfg.Purge.Retention, ShouldEqual, 48*time.Hour)
		So(cfg.Server.Port, ShouldEqual, 8000)
	})

	Convey("Invalid settings are rejected", t, func() {
		clearEnv(t)

		t.Setenv("STORAGE_TYPE", "mongo")
		_, err := FromEnv()
		So(err, ShouldNotBeNil)

		t.Setenv("STORAGE_TYPE", "")
		t.Setenv("WORKER_COUNT", "0")
		_, err = FromEnv()
		So(err, ShouldNotBeNil)

		t.Setenv("WORKER_COUNT", "")
		t.Setenv("PURGE_INTERVAL", "-1m")
		_, err = FromEnv()
		So(err, ShouldNotBeNil)
	})
}
