package db

import (
	"embed"
	"errors"
	"log"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PrepareDSN turns on the driver options the repositories rely on:
// parseTime for DATETIME scanning and multiStatements for migrations.
func PrepareDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN(), nil
}

func MustConnect(dsn string) *sqlx.DB {
	dsn, err := PrepareDSN(dsn)
	if err != nil {
		log.Fatal(err)
	}
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		log.Fatal(err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	return db
}

func MustMigrate(db *sqlx.DB) {
	d, err := migratemysql.WithInstance(db.DB, &migratemysql.Config{})
	if err != nil {
		log.Fatal(err)
	}
	s, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		log.Fatal(err)
	}
	m, err := migrate.NewWithInstance("iofs", s, "mysql", d)
	if err != nil {
		log.Fatal(err)
	}
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal(err)
	}
}
