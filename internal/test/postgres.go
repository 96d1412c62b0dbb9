package test

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Stewz00/apisecure/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Postgres returns a migrated database for integration tests. DATABASE_URL
// is used when set; otherwise a throwaway container is started. The returned
// func releases whatever was acquired.
func Postgres(ctx context.Context) (*database.DB, func(), error) {
	dbURL := os.Getenv("DATABASE_URL")
	terminate := func() {}

	if dbURL == "" {
		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("apisecure_test"),
			postgres.WithUsername("apisecure"),
			postgres.WithPassword("apisecure"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("start postgres container: %w", err)
		}
		terminate = func() { _ = container.Terminate(context.Background()) }

		dbURL, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			terminate()
			return nil, nil, fmt.Errorf("container connection string: %w", err)
		}
	}

	if err := database.Migrate(ctx, dbURL); err != nil {
		terminate()
		return nil, nil, err
	}

	db, err := database.New(ctx, dbURL)
	if err != nil {
		terminate()
		return nil, nil, err
	}

	return db, func() {
		db.Close()
		terminate()
	}, nil
}

// Truncate empties the users table between tests.
func Truncate(ctx context.Context, db *database.DB) error {
	_, err := db.Pool.Exec(ctx, "TRUNCATE users")
	return err
}
