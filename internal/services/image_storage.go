package services

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

const (
	sanitizedNameLength = 50
	unknownCompanyDir   = "unknown"
	ungradedDir         = "ungraded"
)

var unsafeFilenameChars = regexp.MustCompile(`[^\w\s-]`)

// ImageStorageService stores downloaded listing images under
// source/grading_company/{listing_id}_{card_name}_{grade}/, one directory per
// listing, so a rejected listing's assets can be removed as a unit.
type ImageStorageService struct {
	storageDir string
	logger     *zap.Logger
}

// NewImageStorageService creates a storage service rooted at storageDir.
func NewImageStorageService(storageDir string, logger *zap.Logger) *ImageStorageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if storageDir == "" {
		storageDir = "./data/downloaded_images"
	}

	// Log error but don't fail - will fail on actual writes
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		logger.Warn("could not create image storage directory", zap.String("dir", storageDir), zap.Error(err))
	}

	return &ImageStorageService{storageDir: storageDir, logger: logger}
}

// ListingDir returns the listing's asset directory relative to the storage root.
func (s *ImageStorageService) ListingDir(l *models.Listing) string {
	company := string(l.GradingCompany)
	if company == "" {
		company = unknownCompanyDir
	}
	grade := sanitizeFilename(l.Grade)
	if grade == "" {
		grade = ungradedDir
	}
	listingID := sanitizeFilename(l.ListingID)
	if listingID == "" {
		listingID = models.UnknownListingID
	}
	source := sanitizeFilename(string(l.Source))
	leaf := fmt.Sprintf("%s_%s_%s", listingID, sanitizeFilename(l.CardName), grade)
	return filepath.Join(source, company, leaf)
}

// SaveImage writes one image into the listing directory and returns its path
// relative to the storage root. The filename is derived from the image URL,
// so saving the same URL twice overwrites rather than duplicates.
func (s *ImageStorageService) SaveImage(listingDir, imageURL, contentType string, imageData []byte) (string, error) {
	if len(imageData) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	dir := filepath.Join(s.storageDir, listingDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create listing directory: %w", err)
	}

	filename := uuid.NewSHA1(uuid.NameSpaceURL, []byte(imageURL)).String() + imageExtension(imageURL, contentType)
	rel := filepath.Join(listingDir, filename)

	if err := os.WriteFile(filepath.Join(s.storageDir, rel), imageData, 0644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	return filepath.ToSlash(rel), nil
}

// GetStorageDir returns the storage directory path
func (s *ImageStorageService) GetStorageDir() string {
	return s.storageDir
}

// sanitizeFilename strips characters unsafe in paths, joins words with
// underscores and caps the length.
func sanitizeFilename(text string) string {
	cleaned := strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(text, ""))
	cleaned = strings.Join(strings.Fields(cleaned), "_")
	if r := []rune(cleaned); len(r) > sanitizedNameLength {
		cleaned = string(r[:sanitizedNameLength])
	}
	return cleaned
}

func imageExtension(imageURL, contentType string) string {
	if u, err := url.Parse(imageURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); imageExtensions[ext] {
			return ext
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/png":
			return ".png"
		case "image/gif":
			return ".gif"
		case "image/webp":
			return ".webp"
		}
	}
	return ".jpg"
}
