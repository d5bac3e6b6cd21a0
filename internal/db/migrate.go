package db

import (
	"fmt"

	"github.com/zulandar/perfumery/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Brand{},
		&models.Density{},
		&models.Gender{},
		&models.Perfume{},
		&models.PerfumeImage{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Reference lists the lookup values a fresh catalog needs.
type Reference struct {
	Brands    []string `yaml:"brands"`
	Densities []string `yaml:"densities"`
	Genders   []string `yaml:"genders"`
}

// DefaultReference is seeded when no reference file is given.
var DefaultReference = Reference{
	Densities: []string{"Eau de Cologne", "Eau de Toilette", "Eau de Parfum", "Parfum"},
	Genders:   []string{"female", "male", "unisex"},
}

// SeedReference inserts brands, densities and genders, ignoring names that
// already exist.
func SeedReference(db *gorm.DB, ref Reference) error {
	for _, name := range ref.Brands {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Brand{Name: name}).Error; err != nil {
			return fmt.Errorf("db: seed brand %q: %w", name, err)
		}
	}
	for _, name := range ref.Densities {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Density{Name: name}).Error; err != nil {
			return fmt.Errorf("db: seed density %q: %w", name, err)
		}
	}
	for _, name := range ref.Genders {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Gender{Gender: name}).Error; err != nil {
			return fmt.Errorf("db: seed gender %q: %w", name, err)
		}
	}
	return nil
}
