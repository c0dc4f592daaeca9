package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-andersen/ebay-card-scraper/internal/metrics"
	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

// AssetCleaner removes the image files of rejected listings and then any
// listing directory left empty. A directory is re-read immediately before it
// is removed; one that still holds files is reported and left alone.
type AssetCleaner struct {
	root   string
	logger *zap.Logger
}

// NewAssetCleaner resolves listing image paths relative to root.
func NewAssetCleaner(root string, logger *zap.Logger) *AssetCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		logger.Warn("could not resolve asset root", zap.String("root", root), zap.Error(err))
		abs = filepath.Clean(root)
	}
	return &AssetCleaner{root: abs, logger: logger}
}

// Root returns the asset root directory.
func (c *AssetCleaner) Root() string {
	return c.root
}

// DeleteListingAssets deletes images and prunes their now-empty parent
// directories. Failures are counted and logged, never returned.
func (c *AssetCleaner) DeleteListingAssets(images []string) models.CleanupResult {
	var result models.CleanupResult
	dirs := make(map[string]struct{})

	for _, img := range images {
		img = strings.TrimSpace(img)
		if img == "" {
			continue
		}
		full, err := c.resolve(img)
		if err != nil {
			c.logger.Warn("refusing to delete asset outside root", zap.String("path", img), zap.Error(err))
			result.Failures++
			continue
		}

		dir := filepath.Dir(full)
		err = os.Remove(full)
		switch {
		case err == nil:
			result.FilesDeleted++
			dirs[dir] = struct{}{}
			c.logger.Debug("deleted asset", zap.String("path", full))
		case errors.Is(err, fs.ErrNotExist):
			// Already gone; its directory may still need pruning
			if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
				dirs[dir] = struct{}{}
			}
		default:
			c.logger.Warn("failed to delete asset", zap.String("path", full), zap.Error(err))
			result.Failures++
		}
	}

	result.Add(c.pruneDirectories(dirs))

	metrics.AssetFilesDeletedTotal.Add(float64(result.FilesDeleted))
	metrics.AssetDirectoriesDeletedTotal.Add(float64(result.DirectoriesDeleted))
	metrics.AssetDeletionFailuresTotal.Add(float64(result.Failures))
	return result
}

func (c *AssetCleaner) pruneDirectories(dirs map[string]struct{}) models.CleanupResult {
	var result models.CleanupResult

	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		if d == c.root {
			continue
		}
		ordered = append(ordered, d)
	}
	sort.Strings(ordered)

	for _, dir := range ordered {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			c.logger.Warn("failed to read asset directory", zap.String("dir", dir), zap.Error(err))
			result.Failures++
			continue
		}
		if len(entries) > 0 {
			c.logger.Info("asset directory still in use, keeping it",
				zap.String("dir", dir), zap.Int("remaining", len(entries)))
			result.DirectoriesKept = append(result.DirectoriesKept, dir)
			continue
		}
		if err := os.Remove(dir); err != nil {
			c.logger.Warn("failed to remove asset directory", zap.String("dir", dir), zap.Error(err))
			result.Failures++
			continue
		}
		result.DirectoriesDeleted++
		c.logger.Debug("removed empty asset directory", zap.String("dir", dir))
	}
	return result
}

// resolve maps a stored image path to a file under the root. Relative paths
// are taken from the root; absolute ones must already lie inside it.
func (c *AssetCleaner) resolve(p string) (string, error) {
	full := filepath.Clean(p)
	if !filepath.IsAbs(full) {
		full = filepath.Join(c.root, full)
	}
	rel, err := filepath.Rel(c.root, full)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes asset root %q", p, c.root)
	}
	return full, nil
}
