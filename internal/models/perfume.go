package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Perfume is a catalog product. Article is both the primary key and the
// numeric prefix of the product's image files on disk.
type Perfume struct {
	Article     int             `gorm:"primaryKey;autoIncrement" json:"article"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	FullName    string          `gorm:"size:512;not null" json:"fullName"`
	Description *string         `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	ReleaseYear *int            `gorm:"index" json:"releaseYear"`
	BrandID     uint            `gorm:"not null;index" json:"brandId"`
	DensityID   uint            `gorm:"not null;index" json:"densityId"`
	GenderID    uint            `gorm:"not null;index" json:"genderId"`
	CreatedAt   time.Time       `json:"-"`
	UpdatedAt   time.Time       `json:"-"`

	Brand   Brand          `gorm:"foreignKey:BrandID" json:"brand"`
	Density Density        `gorm:"foreignKey:DensityID" json:"density"`
	Gender  Gender         `gorm:"foreignKey:GenderID" json:"gender"`
	Images  []PerfumeImage `gorm:"foreignKey:Article;references:Article;constraint:OnDelete:CASCADE" json:"images"`
}

// PerfumeImage is one product photo. (Article, URL) is unique so that bulk
// inserts can skip rows that already exist.
type PerfumeImage struct {
	ID        uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Article   int     `gorm:"not null;uniqueIndex:idx_perfume_image_article_url,priority:1" json:"article"`
	URL       string  `gorm:"size:512;not null;uniqueIndex:idx_perfume_image_article_url,priority:2" json:"url"`
	IsMain    bool    `gorm:"not null;default:false" json:"isMain"`
	SortOrder int     `gorm:"not null;default:0" json:"sortOrder"`
	AltText   *string `gorm:"size:512" json:"altText"`
}
