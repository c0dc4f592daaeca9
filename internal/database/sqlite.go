package database

import (
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

var DB *gorm.DB

// Initialize opens the SQLite catalog at dbPath and migrates the schema.
// Use ":memory:" for a throwaway catalog.
func Initialize(dbPath string, log *zap.Logger) error {
	db, err := Open(dbPath, log)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open connects and migrates without touching the package-level DB.
func Open(dbPath string, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	log.Info("database connected", zap.String("path", dbPath))

	// Must run before AutoMigrate adds the unique index on dedup_key
	if err := cleanupDuplicateListings(db, log); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.Listing{}); err != nil {
		return nil, err
	}

	if err := RunMigrations(db, log); err != nil {
		return nil, err
	}

	log.Info("database migration completed")
	return db, nil
}

func GetDB() *gorm.DB {
	return DB
}
