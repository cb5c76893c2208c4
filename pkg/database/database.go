package database

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"library_backend/pkg/config"
	"library_backend/pkg/models"
)

// InitLibraryDB connects with retries, sizes the pool and migrates the schema.
func InitLibraryDB(cfg config.Database, logger *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("connecting to library database",
		zap.String("driver", cfg.Driver),
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("name", cfg.Name),
	)

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var db *gorm.DB
	for i := 0; i < maxRetries; i++ {
		db, err = Open(dialector)
		if err == nil {
			break
		}
		logger.Warn("database connection attempt failed",
			zap.Int("attempt", i+1),
			zap.Int("maxRetries", maxRetries),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			time.Sleep(5 * time.Second)
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get database instance")
	}
	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Info("database connection established successfully")
	return db, nil
}

// Open opens a gorm handle with unique-violation translation enabled.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{TranslateError: true})
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return errors.Wrap(err, "database migration failed")
	}
	return nil
}

const outstandingLoanIndex = "idx_loans_outstanding_member_book"

// ApplyLendingRules creates the partial unique index that allows one
// outstanding loan per member and book, or drops it when duplicates are allowed.
func ApplyLendingRules(db *gorm.DB, cfg config.Lending) error {
	stmt := "DROP INDEX IF EXISTS " + outstandingLoanIndex
	if cfg.PreventDuplicateLoans {
		stmt = "CREATE UNIQUE INDEX IF NOT EXISTS " + outstandingLoanIndex +
			" ON loans (member_id, book_id) WHERE return_date IS NULL"
	}
	if err := db.Exec(stmt).Error; err != nil {
		return errors.Wrap(err, "apply lending rules")
	}
	return nil
}

func dialectorFor(cfg config.Database) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.Path), nil
	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
