package storage

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"im-sync/internal/config"
	"im-sync/internal/models"
)

// InitDB opens the archive database described by cfg.
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "postgres":
		var dsnParts []string
		dsnParts = append(dsnParts, fmt.Sprintf("host=%s", cfg.Host))
		dsnParts = append(dsnParts, fmt.Sprintf("port=%d", cfg.Port))
		dsnParts = append(dsnParts, fmt.Sprintf("user=%s", cfg.User))
		dsnParts = append(dsnParts, fmt.Sprintf("dbname=%s", cfg.DBName))
		if cfg.Password != "" {
			dsnParts = append(dsnParts, fmt.Sprintf("password=%s", cfg.Password))
		}
		dsnParts = append(dsnParts, fmt.Sprintf("sslmode=%s", cfg.SSLMode))

		glog.V(1).Infof("storage: postgres archive at %s:%d/%s", cfg.Host, cfg.Port, cfg.DBName)
		dialector = postgres.Open(strings.Join(dsnParts, " "))
	case "sqlite", "":
		path := cfg.Path
		if path == "" {
			path = "im-sync.db"
		}
		glog.V(1).Infof("storage: sqlite archive at %s", path)
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	newLogger := logger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	return db, nil
}

// AutoMigrateTables creates or updates the archive tables.
func AutoMigrateTables(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.ArchivedMessage{},
		&models.ArchivedNotification{},
	); err != nil {
		return fmt.Errorf("archive migration failed: %w", err)
	}
	glog.V(1).Info("storage: archive tables migrated")
	return nil
}
