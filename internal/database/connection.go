package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/s/eduPortal/internal/logger"
)

// DefaultDSN - локальная база из docker-compose.
const DefaultDSN = "host=db user=postgres password=1234 dbname=portal port=5432 sslmode=disable"

const sqlitePrefix = "sqlite:"

// Options - параметры подключения.
type Options struct {
	DSN      string
	Attempts int
	Delay    time.Duration
	Logger   *logger.Logger
}

// Connect открывает базу dev-бэкенда. DSN вида "sqlite:<файл>" открывает SQLite,
// остальные - PostgreSQL.
func Connect(opts Options) (*gorm.DB, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		dsn = DefaultDSN
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	dialector := postgres.Open(dsn)
	if strings.HasPrefix(dsn, sqlitePrefix) {
		dialector = sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix))
	}
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	var db *gorm.DB
	var err error

	// Попытки подключения (Docker-база иногда «просыпается» пару секунд)
	for i := 0; i < attempts; i++ {
		db, err = gorm.Open(dialector, cfg)
		if err == nil {
			log.Info("Успешное подключение к базе данных", "driver", dialector.Name())
			return db, nil
		}

		log.Warn("Попытка подключения не удалась, ждем...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}

	return nil, fmt.Errorf("не удалось подключиться к БД после нескольких попыток: %w", err)
}
