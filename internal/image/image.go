// Package image manages uploaded product images: validation, storage on
// disk, and the main-image flag of each perfume.
package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"
	"gorm.io/gorm"

	"github.com/zulandar/perfumery/internal/models"
)

var (
	ErrNotFound        = errors.New("image: not found")
	ErrPerfumeNotFound = errors.New("image: perfume not found")
	ErrTooLarge        = errors.New("image: file too large")
	ErrUnsupportedType = errors.New("image: only JPEG, PNG and WebP are accepted")
	ErrCorrupt         = errors.New("image: file cannot be decoded")
	ErrInvalid         = errors.New("image: invalid input")
)

// allowedTypes maps accepted MIME types to the extension files are stored with.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Options locates stored images.
type Options struct {
	// PublicDir is the directory served under PublicPrefix.
	PublicDir    string
	PublicPrefix string
	// BasePath is the stored URL prefix of images, relative to PublicDir.
	BasePath string
	MaxBytes int64
}

// Service implements image uploads and edits.
type Service struct {
	db   *gorm.DB
	opts Options
	log  zerolog.Logger
}

// NewService returns a Service.
func NewService(db *gorm.DB, opts Options, log zerolog.Logger) *Service {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 << 20
	}
	if opts.BasePath == "" {
		opts.BasePath = "/images/"
	}
	if opts.PublicPrefix == "" {
		opts.PublicPrefix = "/public/"
	}
	return &Service{db: db, opts: opts, log: log}
}

// UploadOpts describes an uploaded file.
type UploadOpts struct {
	Article int
	AltText *string
}

// UpdateOpts is a partial image update. AltText is applied only when
// SetAltText is true; a nil AltText then clears it.
type UpdateOpts struct {
	IsMain     *bool
	SortOrder  *int
	AltText    *string
	SetAltText bool
}

// PublicURL turns a stored URL into the URL clients fetch it from.
func PublicURL(prefix, stored string) string {
	return path.Join(prefix, strings.TrimPrefix(stored, "/"))
}

// URL is PublicURL with the service's static prefix.
func (s *Service) URL(stored string) string {
	return PublicURL(s.opts.PublicPrefix, stored)
}

// FilePath is where the file behind a stored URL lives on disk.
func (s *Service) FilePath(stored string) string {
	return filepath.Join(s.opts.PublicDir, filepath.FromSlash(path.Clean("/"+stored)))
}

// Upload validates r, writes it under the perfume's image directory and
// records it. The first image of a perfume becomes its main image.
func (s *Service) Upload(ctx context.Context, opts UploadOpts, r io.Reader) (*models.PerfumeImage, error) {
	if opts.Article <= 0 {
		return nil, fmt.Errorf("%w: article must be positive", ErrInvalid)
	}
	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&models.Perfume{}).Where("article = ?", opts.Article).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("image: check perfume %d: %w", opts.Article, err)
	}
	if n == 0 {
		return nil, ErrPerfumeNotFound
	}

	data, err := io.ReadAll(io.LimitReader(r, s.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("image: read upload: %w", err)
	}
	if int64(len(data)) > s.opts.MaxBytes {
		return nil, ErrTooLarge
	}
	ext, err := validate(data)
	if err != nil {
		return nil, err
	}

	article := strconv.Itoa(opts.Article)
	name := uuid.NewString() + ext
	stored := path.Join(s.opts.BasePath, article, name)
	dst := s.FilePath(stored)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, fmt.Errorf("image: create directory: %w", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return nil, fmt.Errorf("image: write file: %w", err)
	}

	img := models.PerfumeImage{Article: opts.Article, URL: stored, AltText: opts.AltText}
	err = db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PerfumeImage{}).Where("article = ?", opts.Article).Count(&count).Error; err != nil {
			return err
		}
		img.IsMain = count == 0
		img.SortOrder = int(count) + 1
		return tx.Create(&img).Error
	})
	if err != nil {
		if rmErr := os.Remove(dst); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("path", dst).Msg("cannot remove orphaned upload")
		}
		return nil, fmt.Errorf("image: save record: %w", err)
	}
	s.log.Info().Int("article", opts.Article).Uint("id", img.ID).Str("url", stored).Msg("image uploaded")
	return &img, nil
}

// validate sniffs the content type and decodes the image fully.
func validate(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	ext := ""
	for m, e := range allowedTypes {
		if mt.Is(m) {
			ext = e
			break
		}
	}
	if ext == "" {
		return "", ErrUnsupportedType
	}
	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return ext, nil
}

// Get returns one image.
func (s *Service) Get(ctx context.Context, id uint) (*models.PerfumeImage, error) {
	var img models.PerfumeImage
	err := s.db.WithContext(ctx).First(&img, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("image: get %d: %w", id, err)
	}
	return &img, nil
}

// Update applies opts to an image. Setting IsMain clears the flag on the
// perfume's other images in the same transaction.
func (s *Service) Update(ctx context.Context, id uint, opts UpdateOpts) (*models.PerfumeImage, error) {
	if opts.SortOrder != nil && *opts.SortOrder < 1 {
		return nil, fmt.Errorf("%w: sort order must be at least 1", ErrInvalid)
	}

	var img models.PerfumeImage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&img, id).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{}
		if opts.IsMain != nil {
			if *opts.IsMain {
				if err := tx.Model(&models.PerfumeImage{}).
					Where("article = ? AND id <> ?", img.Article, img.ID).
					Update("is_main", false).Error; err != nil {
					return err
				}
			}
			updates["is_main"] = *opts.IsMain
		}
		if opts.SortOrder != nil {
			updates["sort_order"] = *opts.SortOrder
		}
		if opts.SetAltText {
			updates["alt_text"] = opts.AltText
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&img).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&img, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("image: update %d: %w", id, err)
	}
	return &img, nil
}

// Delete removes an image record and its file. When the image was the
// perfume's main image, the remaining image with the lowest sort order is
// promoted. A file that cannot be removed is logged, not returned.
func (s *Service) Delete(ctx context.Context, id uint) error {
	var img models.PerfumeImage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&img, id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.PerfumeImage{}, img.ID).Error; err != nil {
			return err
		}
		if !img.IsMain {
			return nil
		}
		var next models.PerfumeImage
		err := tx.Where("article = ?", img.Article).Order("sort_order ASC").Order("id ASC").First(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&next).Update("is_main", true).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("image: delete %d: %w", id, err)
	}

	file := s.FilePath(img.URL)
	if err := os.Remove(file); err != nil {
		s.log.Warn().Err(err).Str("path", file).Uint("id", img.ID).Msg("cannot remove image file")
	}
	return nil
}
