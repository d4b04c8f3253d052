package database

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rainbow-register/internal/models"
)

var DB *gorm.DB

// Connect opens the database for the given driver ("postgres" or "sqlite")
func Connect(driver, dsn string, log *zap.Logger) error {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	var err error
	DB, err = gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("Database connection established", zap.String("driver", driver))
	return nil
}

// Models lists every persisted model in migration order
func Models() []interface{} {
	return []interface{}{
		&models.Sequence{},
		&models.Profile{},
		&models.InvitationCode{},
		&models.SystemSetting{},
		&models.AuditLog{},
	}
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	var errs []error
	for _, model := range Models() {
		if err := db.AutoMigrate(model); err != nil {
			log.Warn("Migration issue", zap.String("model", fmt.Sprintf("%T", model)), zap.Error(err))
			errs = append(errs, fmt.Errorf("migrate %T: %w", model, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	log.Info("Database migrations completed")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
