package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cleanupDuplicateListings removes rows sharing a dedup_key before the unique
// index is added. The earliest row wins, matching first-occurrence semantics.
func cleanupDuplicateListings(db *gorm.DB, log *zap.Logger) error {
	if !db.Migrator().HasTable("listings") || !db.Migrator().HasColumn("listings", "dedup_key") {
		return nil
	}

	result := db.Exec(`
		DELETE FROM listings
		WHERE id NOT IN (
			SELECT MIN(id)
			FROM listings
			GROUP BY dedup_key
		)
	`)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Info("cleaned up duplicate listings", zap.Int64("rows", result.RowsAffected))
	}
	return nil
}

// RunMigrations runs data fixes after schema changes. Each step is safe to
// repeat.
func RunMigrations(db *gorm.DB, log *zap.Logger) error {
	if err := migrateListingIDDefault(db, log); err != nil {
		return err
	}
	return migrateGradingCompanyAliases(db, log)
}

// migrateListingIDDefault stores the explicit "unknown" id for listings
// captured without one.
func migrateListingIDDefault(db *gorm.DB, log *zap.Logger) error {
	result := db.Exec(`UPDATE listings SET listing_id = 'unknown' WHERE listing_id IS NULL OR listing_id = ''`)
	if result.Error != nil {
		log.Warn("failed to default listing ids", zap.Error(result.Error))
		return nil
	}
	if result.RowsAffected > 0 {
		log.Info("defaulted missing listing ids", zap.Int64("rows", result.RowsAffected))
	}
	return nil
}

// migrateGradingCompanyAliases folds marketplace spellings into canonical
// company codes. Dataset files are read verbatim, so rows appended from an
// older CSV (curate ingest -catalog) or a pre-normalization catalog can still
// carry "Beckett".
func migrateGradingCompanyAliases(db *gorm.DB, log *zap.Logger) error {
	result := db.Exec(`UPDATE listings SET grading_company = 'BGS' WHERE UPPER(grading_company) = 'BECKETT'`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Info("normalized grading company aliases", zap.Int64("rows", result.RowsAffected))
	}
	return nil
}
