package ingest

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/perfumery/internal/models"
)

// ErrProductNotFound is returned by ProductStore.FindPerfume when no perfume
// has the requested article.
var ErrProductNotFound = errors.New("ingest: product not found")

// ProductStore is the database surface the loader depends on.
type ProductStore interface {
	FindPerfume(ctx context.Context, article int) (*models.Perfume, error)
	// InsertImages inserts rows in one statement, skipping rows whose
	// (article, url) already exists, and returns the number inserted.
	InsertImages(ctx context.Context, images []models.PerfumeImage) (int64, error)
}

// GormStore implements ProductStore on a GORM connection.
type GormStore struct {
	DB *gorm.DB
}

// NewGormStore returns a ProductStore backed by db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// FindPerfume loads the perfume with the given article.
func (s *GormStore) FindPerfume(ctx context.Context, article int) (*models.Perfume, error) {
	var p models.Perfume
	err := s.DB.WithContext(ctx).
		Select("article", "name", "full_name").
		Where("article = ?", article).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: find perfume %d: %w", article, err)
	}
	return &p, nil
}

// InsertImages bulk-inserts images, ignoring duplicates.
func (s *GormStore) InsertImages(ctx context.Context, images []models.PerfumeImage) (int64, error) {
	if len(images) == 0 {
		return 0, nil
	}
	result := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&images)
	if result.Error != nil {
		return 0, fmt.Errorf("ingest: insert %d images: %w", len(images), result.Error)
	}
	return result.RowsAffected, nil
}
