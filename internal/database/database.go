package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/config"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{TranslateError: true}

	if cfg.DBDriver == config.DriverSQLite {
		return OpenSQLite(cfg.SQLitePath, gormCfg)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	log.Println("database connected")
	return db, nil
}

// OpenSQLite opens a file-backed SQLite database. Writes are serialized
// through a single connection.
func OpenSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{TranslateError: true}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	log.Printf("database connected (sqlite %s)", path)
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Host{},
		&models.Session{},
		&models.Participant{},
		&models.Vote{},
		&models.TallyEntry{},
		&models.Discussion{},
		&models.DiscussionMessage{},
		&models.DiscussionAnalysis{},
		&models.GlobalAnalysis{},
		&models.AnalysisRun{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	log.Println("database migrated")
	return nil
}
