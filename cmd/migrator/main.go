// Command migrator applies the canteen schema migrations in db/migrations.
// It connects with the same DATABASE_URL the server and seed tool use.
package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var (
		up        = flag.Bool("up", false, "apply all pending migrations")
		down      = flag.Bool("down", false, "roll back all migrations")
		steps     = flag.Int("steps", 0, "apply a signed number of migration steps")
		sourceDir = flag.String("source", "db/migrations", "migrations directory")
	)
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("migrator: DATABASE_URL is required")
	}

	m, err := migrate.New("file://"+*sourceDir, dsn)
	if err != nil {
		log.Fatalf("migrator: init failed: %v", err)
	}
	defer m.Close()

	switch {
	case *up:
		run("up", m.Up())
	case *down:
		run("down", m.Down())
	case *steps != 0:
		run("steps", m.Steps(*steps))
	default:
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("migrator: no migrations applied yet")
			return
		}
		if err != nil {
			log.Fatalf("migrator: read version failed: %v", err)
		}
		log.Printf("migrator: at version %d (dirty=%v); use -up, -down, or -steps", version, dirty)
	}
}

func run(name string, err error) {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Printf("migrator: %s: nothing to do", name)
		return
	}
	if err != nil {
		log.Fatalf("migrator: %s failed: %v", name, err)
	}
	log.Printf("migrator: %s done", name)
}
