package main

import (
	"flag"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	"github.com/shubhankar-shipowl/help-desk-sub004/migrations"
)

// migrator applies the notification schema embedded in the binary. The
// ticketing tables it reads are owned elsewhere and never touched here.
func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "goose command: up, down, status, version, redo")
	dsn := flag.String("dsn", os.Getenv("DB_DSN"), "postgres DSN, defaults to DB_DSN")
	flag.Parse()

	l, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "helpdesk/migrator"})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	if *dsn == "" {
		l.Fatal("no database: set -dsn or DB_DSN")
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetTableName("notification_goose_version")
	if err := goose.SetDialect("postgres"); err != nil {
		l.Fatal("set dialect", zap.Error(err))
	}
	db, err := goose.OpenDBWithDriver("pgx", *dsn)
	if err != nil {
		l.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	if err := goose.Run(*cmd, db, "."); err != nil {
		l.Fatal("migrate", zap.String("cmd", *cmd), zap.Error(err))
	}
	l.Info("migrations done", zap.String("cmd", *cmd))
}
