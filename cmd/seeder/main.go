package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"nonogram/internal/config"
	"nonogram/internal/entity"
	"nonogram/internal/errs"
	"nonogram/internal/models"
	"nonogram/internal/repository"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	TotalUsers     = 50
	LevelsPerSize  = 8
	ScoresPerUser  = 5
	UsernamePrefix = "player_"
	FillRatio      = 0.55
)

var sizes = []int{5, 10, 15, 20}

func main() {
	log.Println("Starting seeder for the nonogram catalog...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	postgresRepo := repository.NewPostgresRepository(db)
	defer postgresRepo.Close()

	if err := postgresRepo.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	reporter := errs.NewLogReporter(logrus.StandardLogger(), nil)
	entities := entity.NewFactory(postgresRepo, reporter)
	levelRepo := repository.NewLevelRepository(postgresRepo, entities, reporter)

	userIDs, err := seedUsers(ctx, postgresRepo, entities)
	if err != nil {
		log.Fatalf("Failed to seed users: %v", err)
	}
	log.Printf("Seeded %d users", len(userIDs))

	levels, err := seedLevels(ctx, levelRepo, entities, rng)
	if err != nil {
		log.Fatalf("Failed to seed levels: %v", err)
	}
	log.Printf("Seeded %d levels", len(levels))

	for _, userID := range userIDs {
		for i := 0; i < ScoresPerUser; i++ {
			level := levels[rng.Intn(len(levels))]
			level.SaveScore(ctx, userID, int64(30_000+rng.Intn(600_000)))
		}
	}
	log.Printf("Seeded up to %d scores", len(userIDs)*ScoresPerUser)

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if version, err := repository.NewRedisRepository(client).BumpCatalogVersion(ctx); err != nil {
			log.Printf("Failed to bump catalog version: %v", err)
		} else {
			log.Printf("Catalog version is now %d", version)
		}
	}

	total, err := postgresRepo.CountLevels(ctx)
	if err != nil {
		log.Fatalf("Failed to verify levels: %v", err)
	}
	log.Printf("Seeding complete, %d live levels in the catalog", total)
}

func seedUsers(ctx context.Context, repo *repository.PostgresRepository, entities *entity.Factory) ([]string, error) {
	ids := make([]string, 0, TotalUsers)
	for i := 1; i <= TotalUsers; i++ {
		user, err := entities.NewUser(models.RawUser{
			ID:       ulid.Make().String(),
			Username: fmt.Sprintf("%s%d", UsernamePrefix, i),
		})
		if err != nil {
			return nil, err
		}
		// Usernames are unique, so an existing player_N keeps its original id
		if err := repo.UpsertUser(ctx, &models.User{ID: user.ID(), Username: user.Username()}); err != nil {
			existing, findErr := findByUsername(ctx, repo, user.Username())
			if findErr != nil {
				return nil, err
			}
			ids = append(ids, existing)
			continue
		}
		ids = append(ids, user.ID())
	}
	return ids, nil
}

func findByUsername(ctx context.Context, repo *repository.PostgresRepository, username string) (string, error) {
	var row models.User
	if err := repo.DB().WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

func seedLevels(ctx context.Context, repo *repository.LevelRepository, entities *entity.Factory, rng *rand.Rand) ([]*entity.Level, error) {
	var levels []*entity.Level
	for _, n := range sizes {
		for i := 1; i <= LevelsPerSize; i++ {
			level, err := entities.NewLevel(models.RawLevel{
				Name: fmt.Sprintf("%dx%d #%d", n, n, i),
				Grid: randomGrid(rng, n),
			})
			if err != nil {
				return nil, err
			}
			levels = append(levels, level)
		}
	}
	if err := repo.SaveLevels(ctx, levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// randomGrid fills roughly FillRatio of an n by n grid, with every row holding at least one
// filled cell
func randomGrid(rng *rand.Rand, n int) models.Grid {
	g := make(models.Grid, n)
	for r := range g {
		g[r] = make([]models.Cell, n)
		for c := range g[r] {
			if rng.Float64() < FillRatio {
				g[r][c].Status = models.CellFilled
			}
		}
		g[r][rng.Intn(n)].Status = models.CellFilled
	}
	return g
}
