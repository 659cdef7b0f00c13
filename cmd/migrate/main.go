package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wolfman30/rams-care-platform/cmd/mainconfig"
	appconfig "github.com/wolfman30/rams-care-platform/internal/config"
	appmigrations "github.com/wolfman30/rams-care-platform/migrations"
)

// Usage:
//
//	migrate                 apply every pending migration
//	migrate down <steps>    roll back steps migrations
//	migrate force <version> mark version as applied after a failed run
func main() {
	mainconfig.LoadEnv()
	databaseURL := strings.TrimSpace(appconfig.Load().DatabaseURL)
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	m, err := newMigrator(db)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _, _ = m.Close() }()

	msg, err := run(m, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(msg)
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// migrator is the subset of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Force(version int) error
}

func run(m migrator, args []string) (string, error) {
	if len(args) == 0 || args[0] == "up" {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return "", fmt.Errorf("migrate up: %w", err)
		}
		return "migrations complete", nil
	}
	if len(args) < 2 {
		return "", fmt.Errorf("%s needs an argument", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return "", fmt.Errorf("invalid number %q: %w", args[1], err)
	}
	switch args[0] {
	case "down":
		if n <= 0 {
			return "", fmt.Errorf("down needs a positive step count")
		}
		if err := m.Steps(-n); err != nil {
			return "", fmt.Errorf("migrate down: %w", err)
		}
		return fmt.Sprintf("rolled back %d migration(s)", n), nil
	case "force":
		if err := m.Force(n); err != nil {
			return "", fmt.Errorf("force version: %w", err)
		}
		return fmt.Sprintf("forced version to %d", n), nil
	}
	return "", fmt.Errorf("unknown command %q", args[0])
}
