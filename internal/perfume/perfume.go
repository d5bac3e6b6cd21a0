// Package perfume provides catalog operations on perfumes.
package perfume

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/zulandar/perfumery/internal/models"
)

// Listing limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	// ErrNotFound is returned when no perfume has the requested article.
	ErrNotFound = errors.New("perfume: not found")
	// ErrInvalid wraps input errors callers should report as bad requests.
	ErrInvalid = errors.New("perfume: invalid input")
)

// ListOpts controls pagination for List.
type ListOpts struct {
	Limit  int
	Offset int
}

// Summary is one row of the catalog listing. MainImageURL is the stored
// URL of the main image, or nil when the perfume has none.
type Summary struct {
	Article      int
	Name         string
	FullName     string
	MainImageURL *string
	Brand        string
	Gender       string
	Density      string
}

// CreateOpts holds the fields of a new perfume.
type CreateOpts struct {
	Name        string
	FullName    string
	Description *string
	Price       decimal.Decimal
	ReleaseYear *int
	BrandID     uint
	DensityID   uint
	GenderID    uint
}

// updatable maps accepted Update keys to columns.
var updatable = map[string]bool{
	"name":         true,
	"full_name":    true,
	"description":  true,
	"price":        true,
	"release_year": true,
	"brand_id":     true,
	"density_id":   true,
	"gender_id":    true,
}

// List returns perfumes ordered by release year, newest first, with their
// reference names and main image.
func List(db *gorm.DB, opts ListOpts) ([]Summary, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalid, MaxLimit)
	}
	if opts.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrInvalid)
	}

	var perfumes []models.Perfume
	err := db.Preload("Brand").Preload("Density").Preload("Gender").
		Preload("Images", "is_main = ?", true).
		Order("release_year DESC").Order("article").
		Limit(limit).Offset(opts.Offset).
		Find(&perfumes).Error
	if err != nil {
		return nil, fmt.Errorf("perfume: list: %w", err)
	}

	out := make([]Summary, 0, len(perfumes))
	for _, p := range perfumes {
		s := Summary{
			Article:  p.Article,
			Name:     p.Name,
			FullName: p.FullName,
			Brand:    p.Brand.Name,
			Gender:   p.Gender.Gender,
			Density:  p.Density.Name,
		}
		if len(p.Images) > 0 {
			url := p.Images[0].URL
			s.MainImageURL = &url
		}
		out = append(out, s)
	}
	return out, nil
}

// Get returns a perfume with its references and images ordered by sort order.
func Get(db *gorm.DB, article int) (*models.Perfume, error) {
	var p models.Perfume
	err := db.Preload("Brand").Preload("Density").Preload("Gender").
		Preload("Images", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("sort_order ASC").Order("id ASC")
		}).
		Where("article = ?", article).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("perfume: get %d: %w", article, err)
	}
	return &p, nil
}

// Exists reports whether a perfume with article exists.
func Exists(db *gorm.DB, article int) (bool, error) {
	var n int64
	if err := db.Model(&models.Perfume{}).Where("article = ?", article).Count(&n).Error; err != nil {
		return false, fmt.Errorf("perfume: check %d: %w", article, err)
	}
	return n > 0, nil
}

// Create inserts a new perfume and returns it.
func Create(db *gorm.DB, opts CreateOpts) (*models.Perfume, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if opts.FullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalid)
	}
	if opts.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalid)
	}
	if err := checkRefs(db, opts.BrandID, opts.DensityID, opts.GenderID); err != nil {
		return nil, err
	}

	p := models.Perfume{
		Name:        opts.Name,
		FullName:    opts.FullName,
		Description: opts.Description,
		Price:       opts.Price,
		ReleaseYear: opts.ReleaseYear,
		BrandID:     opts.BrandID,
		DensityID:   opts.DensityID,
		GenderID:    opts.GenderID,
	}
	if err := db.Omit("Brand", "Density", "Gender", "Images").Create(&p).Error; err != nil {
		return nil, fmt.Errorf("perfume: create: %w", err)
	}
	return &p, nil
}

// Update applies a partial update keyed by column name and returns the
// updated perfume.
func Update(db *gorm.DB, article int, updates map[string]interface{}) (*models.Perfume, error) {
	for k := range updates {
		if !updatable[k] {
			return nil, fmt.Errorf("%w: field %q cannot be updated", ErrInvalid, k)
		}
	}

	ok, err := Exists(db, article)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if len(updates) == 0 {
		return Get(db, article)
	}

	if v, ok := updates["price"].(decimal.Decimal); ok && v.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalid)
	}
	for _, k := range []string{"name", "full_name"} {
		if v, ok := updates[k].(string); ok && v == "" {
			return nil, fmt.Errorf("%w: %s must not be empty", ErrInvalid, k)
		}
	}
	brand, _ := updates["brand_id"].(uint)
	density, _ := updates["density_id"].(uint)
	gender, _ := updates["gender_id"].(uint)
	if err := checkOptionalRefs(db, brand, density, gender); err != nil {
		return nil, err
	}

	if err := db.Model(&models.Perfume{}).Where("article = ?", article).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("perfume: update %d: %w", article, err)
	}
	return Get(db, article)
}

// Delete removes a perfume and its image rows. Image files are left on disk.
func Delete(db *gorm.DB, article int) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("article = ?", article).Delete(&models.PerfumeImage{}).Error; err != nil {
			return fmt.Errorf("perfume: delete images of %d: %w", article, err)
		}
		result := tx.Where("article = ?", article).Delete(&models.Perfume{})
		if result.Error != nil {
			return fmt.Errorf("perfume: delete %d: %w", article, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func checkRefs(db *gorm.DB, brandID, densityID, genderID uint) error {
	if brandID == 0 || densityID == 0 || genderID == 0 {
		return fmt.Errorf("%w: brand, density and gender are required", ErrInvalid)
	}
	return checkOptionalRefs(db, brandID, densityID, genderID)
}

// checkOptionalRefs verifies every non-zero reference ID exists.
func checkOptionalRefs(db *gorm.DB, brandID, densityID, genderID uint) error {
	refs := []struct {
		name  string
		id    uint
		model interface{}
	}{
		{"brand", brandID, &models.Brand{}},
		{"density", densityID, &models.Density{}},
		{"gender", genderID, &models.Gender{}},
	}
	for _, r := range refs {
		if r.id == 0 {
			continue
		}
		var n int64
		if err := db.Model(r.model).Where("id = ?", r.id).Count(&n).Error; err != nil {
			return fmt.Errorf("perfume: check %s %d: %w", r.name, r.id, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s %d does not exist", ErrInvalid, r.name, r.id)
		}
	}
	return nil
}
