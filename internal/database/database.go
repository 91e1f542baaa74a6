package database

import (
	"fmt"
	"time"

	"github.com/yukikurage/task-tracker-api/internal/config"
	"github.com/yukikurage/task-tracker-api/internal/logger"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the configured database.
func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, NewGormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Get().Info().Str("driver", cfg.Driver).Msg("database connection established")
	return db, nil
}

// Dialector picks the gorm driver for cfg.Driver. DB_DSN wins over the
// individual connection fields.
func Dialector(cfg config.DBConfig) (gorm.Dialector, error) {
	dsn := cfg.DSN
	switch cfg.Driver {
	case "mysql":
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
				cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		}
		return mysql.Open(dsn), nil
	case "postgres":
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
				cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)
		}
		return postgres.Open(dsn), nil
	case "sqlite":
		if dsn == "" {
			dsn = cfg.Name + ".db"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// NewGormConfig returns the gorm settings shared by the server and tests.
// TranslateError turns driver unique violations into gorm.ErrDuplicatedKey.
func NewGormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(gormLogWriter{}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// gormLogWriter routes gorm's log lines into zerolog.
type gormLogWriter struct{}

func (gormLogWriter) Printf(format string, args ...interface{}) {
	logger.Get().Warn().Str("component", "gorm").Msgf(format, args...)
}

// Migrate creates or updates the tables for every model.
func Migrate(db *gorm.DB) error {
	logger.Get().Info().Msg("running database migrations")
	err := db.AutoMigrate(
		&models.User{},
		&models.Task{},
		&models.Comment{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := AddIndexes(db); err != nil {
		return fmt.Errorf("failed to add indexes: %w", err)
	}
	logger.Get().Info().Msg("database migrations completed")
	return nil
}
