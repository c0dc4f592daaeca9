package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

func TestOpenMigratesLegacyCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, legacy.Exec(`
		CREATE TABLE listings (
			id integer PRIMARY KEY AUTOINCREMENT,
			dedup_key text NOT NULL,
			title text NOT NULL,
			card_name text,
			grading_company text,
			grade text,
			price real,
			listing_url text NOT NULL,
			listing_id text,
			image_urls text,
			source text NOT NULL,
			scraped_date datetime,
			images text
		)`).Error)
	require.NoError(t, legacy.Exec(`
		INSERT INTO listings (dedup_key, title, grading_company, listing_url, listing_id, source) VALUES
			('ebay|id:1', 'Charizard Beckett 9.5', 'BECKETT', 'https://www.ebay.com/itm/1', '1', 'ebay'),
			('ebay|id:1', 'Charizard Beckett 9.5 relist', 'BECKETT', 'https://www.ebay.com/itm/1', '1', 'ebay'),
			('mercari|url:u', 'Mew', '', 'u', NULL, 'mercari')`).Error)
	sqlDB, err := legacy.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	db, err := Open(path, nil)
	require.NoError(t, err)

	var listings []models.Listing
	require.NoError(t, db.Order("id ASC").Find(&listings).Error)
	require.Len(t, listings, 2)

	assert.Equal(t, "Charizard Beckett 9.5", listings[0].Title)
	assert.Equal(t, models.CompanyBGS, listings[0].GradingCompany)
	assert.Equal(t, models.UnknownListingID, listings[1].ListingID)

	// The unique index now rejects a second row for the same key
	dup := models.Listing{DedupKey: "ebay|id:1", Title: "x", ListingURL: "y", Source: models.SourceEbay}
	assert.Error(t, db.Create(&dup).Error)
}

func TestInitialize(t *testing.T) {
	require.NoError(t, Initialize(filepath.Join(t.TempDir(), "catalog.db"), nil))
	require.NotNil(t, GetDB())
	assert.True(t, GetDB().Migrator().HasTable(&models.Listing{}))
}
