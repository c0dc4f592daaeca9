package services

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-andersen/ebay-card-scraper/internal/metrics"
	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

// DatasetStore persists the accepted dataset in the SQLite catalog. Rows are
// append-only and unique per identity key; insertion order is dataset order.
type DatasetStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewDatasetStore(db *gorm.DB, logger *zap.Logger) *DatasetStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetStore{db: db, logger: logger}
}

// Append inserts listings whose key is not stored yet and returns how many
// were new. Existing rows are never overwritten, so the first occurrence wins.
func (s *DatasetStore) Append(ds *models.Dataset) (int, error) {
	inserted := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i := range ds.Listings {
			l := ds.Listings[i]
			l.ID = 0
			l.DedupKey = l.Key()
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "dedup_key"}},
				DoNothing: true,
			}).Create(&l)
			if result.Error != nil {
				return fmt.Errorf("failed to store listing %s: %w", l.DedupKey, result.Error)
			}
			inserted += int(result.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.refreshGauge()
	return inserted, nil
}

// Load returns the stored dataset in insertion order.
func (s *DatasetStore) Load() (*models.Dataset, error) {
	var listings []models.Listing
	if err := s.db.Order("id ASC").Find(&listings).Error; err != nil {
		return nil, err
	}
	return models.NewDataset(listings...), nil
}

// Keys returns every stored identity key, for seeding a Deduplicator.
func (s *DatasetStore) Keys() ([]string, error) {
	var keys []string
	if err := s.db.Model(&models.Listing{}).Order("id ASC").Pluck("dedup_key", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// Count returns the number of stored listings.
func (s *DatasetStore) Count() (int64, error) {
	var n int64
	err := s.db.Model(&models.Listing{}).Count(&n).Error
	return n, err
}

func (s *DatasetStore) refreshGauge() {
	n, err := s.Count()
	if err != nil {
		s.logger.Warn("failed to count catalog listings", zap.Error(err))
		return
	}
	metrics.CatalogListings.Set(float64(n))
}
