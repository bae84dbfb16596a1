package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/yourusername/arena-api/internal/config"
)

// Утилита управления схемой: up, down N, force V, version.
// Нужна для ручного снятия dirty-состояния после неудачной миграции.
func main() {
	configPath := flag.String("config", "config/config.yaml", "путь к файлу конфигурации")
	migrationsPath := flag.String("path", "", "каталог миграций (по умолчанию database.migrations_path)")
	steps := flag.Int("steps", 1, "число шагов для down")
	forceVersion := flag.Int("version", -1, "версия для force")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		fmt.Fprintln(os.Stderr, "usage: migrate [flags] up|down|force|version")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	path := *migrationsPath
	if path == "" {
		path = cfg.Database.MigrationsPath
	}

	db, err := sql.Open("postgres", cfg.Database.PostgresURL())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("База данных недоступна: %v", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal(err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		log.Fatal(err)
	}

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-*steps)
	case "force":
		if *forceVersion < 0 {
			log.Fatal("force requires -version")
		}
		err = m.Force(*forceVersion)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			log.Fatal(verr)
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return
	default:
		log.Fatalf("Неизвестная команда %q", command)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Команда %s завершилась ошибкой: %v", command, err)
	}
	log.Printf("Команда %s выполнена", command)
}
