package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"gamification-engine/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogReader is the read side of the badge and perk catalog used by the engine.
type CatalogReader interface {
	Badge(ctx context.Context, key string) (*models.Badge, error)
	ActivePerks(ctx context.Context) ([]models.Perk, error)
}

// IconUploader stores an icon and returns its public URL.
type IconUploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

const activePerksCacheKey = "perks:active"

// CatalogService owns the Badge and Perk tables. Lookups go through an LRU
// cache that is purged whenever the catalog is written.
type CatalogService struct {
	DB     *gorm.DB
	Icons  IconUploader
	cache  *lru.Cache
	logger *zap.Logger
}

func NewCatalogService(db *gorm.DB, cacheSize int, logger *zap.Logger) (*CatalogService, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("catalog cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{DB: db, cache: cache, logger: logger.Named("catalog")}, nil
}

// EnsureCatalog inserts the seed badges and perks that are missing, keyed by
// Key. Existing rows are left alone. When the tables do not exist yet, or the
// store is unreachable, it does nothing and returns false.
func (s *CatalogService) EnsureCatalog(ctx context.Context) bool {
	db := s.DB.WithContext(ctx)
	m := db.Migrator()
	if !m.HasTable(&models.Badge{}) || !m.HasTable(&models.Perk{}) {
		s.logger.Debug("catalog tables missing, bootstrap skipped")
		return false
	}

	badges := make([]models.Badge, len(models.DefaultBadges))
	copy(badges, models.DefaultBadges)
	perks := make([]models.Perk, len(models.DefaultPerks))
	copy(perks, models.DefaultPerks)

	onKey := clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}
	if err := db.Clauses(onKey).Create(&badges).Error; err != nil {
		s.logger.Debug("badge seed skipped", zap.Error(err))
		return false
	}
	if err := db.Clauses(onKey).Create(&perks).Error; err != nil {
		s.logger.Debug("perk seed skipped", zap.Error(err))
		return false
	}
	s.Purge()
	return true
}

// Purge drops every cached lookup.
func (s *CatalogService) Purge() { s.cache.Purge() }

func (s *CatalogService) Badge(ctx context.Context, key string) (*models.Badge, error) {
	cacheKey := "badge:" + key
	if v, ok := s.cache.Get(cacheKey); ok {
		b := v.(models.Badge)
		return &b, nil
	}
	var b models.Badge
	err := s.DB.WithContext(ctx).Where("key = ?", key).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("badge %s: %w", key, ErrCatalogMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("load badge %s: %w", key, err)
	}
	s.cache.Add(cacheKey, b)
	return &b, nil
}

// ActivePerks returns active perks ordered by threshold.
func (s *CatalogService) ActivePerks(ctx context.Context) ([]models.Perk, error) {
	if v, ok := s.cache.Get(activePerksCacheKey); ok {
		return append([]models.Perk(nil), v.([]models.Perk)...), nil
	}
	var perks []models.Perk
	if err := s.DB.WithContext(ctx).Where("active = ?", true).Order("threshold_pts ASC").Find(&perks).Error; err != nil {
		return nil, fmt.Errorf("load perks: %w", err)
	}
	s.cache.Add(activePerksCacheKey, perks)
	return append([]models.Perk(nil), perks...), nil
}

// Catalog is the admin view of every badge and perk.
type Catalog struct {
	Badges []models.Badge `json:"badges"`
	Perks  []models.Perk  `json:"perks"`
}

func (s *CatalogService) List(ctx context.Context) (*Catalog, error) {
	var c Catalog
	db := s.DB.WithContext(ctx)
	if err := db.Order("key ASC").Find(&c.Badges).Error; err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	if err := db.Order("threshold_pts ASC").Find(&c.Perks).Error; err != nil {
		return nil, fmt.Errorf("list perks: %w", err)
	}
	return &c, nil
}

// NormalizeCatalogKey turns "first-post" or "First Post" into "FIRST_POST".
func NormalizeCatalogKey(s string) string {
	return strings.ToUpper(strings.ReplaceAll(slug.Make(s), "-", "_"))
}

// UploadBadgeIcon stores the image and points the badge's Icon at it.
func (s *CatalogService) UploadBadgeIcon(ctx context.Context, key, filename string, data []byte, contentType string) (*models.Badge, error) {
	if s.Icons == nil {
		return nil, errors.New("icon storage is not configured")
	}
	key = NormalizeCatalogKey(key)
	badge, err := s.Badge(ctx, key)
	if err != nil {
		return nil, err
	}

	name := strings.ReplaceAll(slug.Make(key), "_", "-")
	objectKey := fmt.Sprintf("badges/%s-%s%s", name, uuid.NewString()[:8], strings.ToLower(path.Ext(filename)))
	url, err := s.Icons.Upload(ctx, objectKey, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload icon: %w", err)
	}

	if err := s.DB.WithContext(ctx).Model(&models.Badge{}).Where("id = ?", badge.ID).Update("icon", url).Error; err != nil {
		return nil, fmt.Errorf("update badge icon: %w", err)
	}
	s.Purge()
	badge.Icon = url
	s.logger.Info("badge icon updated", zap.String("badge", key), zap.String("url", url))
	return badge, nil
}
