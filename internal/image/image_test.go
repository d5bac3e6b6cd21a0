package image

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/zulandar/perfumery/internal/config"
	"github.com/zulandar/perfumery/internal/db"
	"github.com/zulandar/perfumery/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.Connect(config.DatabaseConfig{Driver: config.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close(gormDB) })
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ref := db.Reference{Brands: []string{"B"}, Densities: []string{"EDP"}, Genders: []string{"female"}}
	if err := db.SeedReference(gormDB, ref); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p := models.Perfume{Article: 10, Name: "Iris", FullName: "Iris EDP", Price: decimal.NewFromInt(50), BrandID: 1, DensityID: 1, GenderID: 1}
	if err := gormDB.Omit("Brand", "Density", "Gender").Create(&p).Error; err != nil {
		t.Fatalf("create perfume: %v", err)
	}
	return gormDB
}

func newService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc := NewService(testDB(t), Options{PublicDir: dir, PublicPrefix: "/public/", BasePath: "/images/", MaxBytes: 1 << 20}, zerolog.New(io.Discard))
	return svc, dir
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, stdimage.NewGray(stdimage.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, stdimage.NewPaletted(stdimage.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White}), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func upload(t *testing.T, svc *Service, data []byte) *models.PerfumeImage {
	t.Helper()
	img, err := svc.Upload(context.Background(), UploadOpts{Article: 10}, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return img
}

func TestPublicURL(t *testing.T) {
	tests := []struct{ prefix, stored, want string }{
		{"/public/", "/images/10/a.jpg", "/public/images/10/a.jpg"},
		{"/public", "images/10/a.jpg", "/public/images/10/a.jpg"},
		{"/static/", "/images/10/a.jpg", "/static/images/10/a.jpg"},
	}
	for _, tt := range tests {
		if got := PublicURL(tt.prefix, tt.stored); got != tt.want {
			t.Errorf("PublicURL(%q, %q) = %q, want %q", tt.prefix, tt.stored, got, tt.want)
		}
	}
}

func TestUpload_StoresFileAndRecord(t *testing.T) {
	svc, dir := newService(t)
	alt := "front"
	img, err := svc.Upload(context.Background(), UploadOpts{Article: 10, AltText: &alt}, bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(img.URL, "/images/10/") || !strings.HasSuffix(img.URL, ".png") {
		t.Errorf("URL = %q", img.URL)
	}
	if !img.IsMain || img.SortOrder != 1 {
		t.Errorf("first upload = %+v, want main with sort order 1", img)
	}
	if img.AltText == nil || *img.AltText != "front" {
		t.Errorf("AltText = %v", img.AltText)
	}
	if _, err := os.Stat(filepath.Join(dir, "images", "10", filepath.Base(img.URL))); err != nil {
		t.Errorf("file not written: %v", err)
	}

	second := upload(t, svc, jpegBytes(t))
	if second.IsMain || second.SortOrder != 2 {
		t.Errorf("second upload = %+v, want secondary with sort order 2", second)
	}
	if !strings.HasSuffix(second.URL, ".jpg") {
		t.Errorf("URL = %q", second.URL)
	}
}

func TestUpload_Rejections(t *testing.T) {
	svc, dir := newService(t)
	valid := pngBytes(t)
	tests := []struct {
		name    string
		article int
		data    []byte
		want    error
	}{
		{"unknown perfume", 99, valid, ErrPerfumeNotFound},
		{"bad article", 0, valid, ErrInvalid},
		{"gif", 10, gifBytes(t), ErrUnsupportedType},
		{"text", 10, []byte("hello"), ErrUnsupportedType},
		{"truncated png", 10, valid[:40], ErrCorrupt},
		{"too large", 10, append(append([]byte{}, valid...), make([]byte, 1<<20)...), ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), UploadOpts{Article: tt.article}, bytes.NewReader(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if _, err := os.Stat(filepath.Join(dir, "images")); !os.IsNotExist(err) {
		t.Error("rejected uploads must not leave files")
	}
}

func TestUpdate_SetMainClearsOthers(t *testing.T) {
	svc, _ := newService(t)
	first := upload(t, svc, pngBytes(t))
	second := upload(t, svc, pngBytes(t))

	yes := true
	got, err := svc.Update(context.Background(), second.ID, UpdateOpts{IsMain: &yes})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !got.IsMain {
		t.Error("second image should be main")
	}
	reloaded, err := svc.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.IsMain {
		t.Error("first image still main")
	}
}

func TestUpdate_FieldsAndErrors(t *testing.T) {
	svc, _ := newService(t)
	img := upload(t, svc, pngBytes(t))
	ctx := context.Background()

	order := 5
	alt := "side view"
	got, err := svc.Update(ctx, img.ID, UpdateOpts{SortOrder: &order, AltText: &alt, SetAltText: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.SortOrder != 5 || got.AltText == nil || *got.AltText != alt {
		t.Errorf("got %+v", got)
	}

	got, err = svc.Update(ctx, img.ID, UpdateOpts{SetAltText: true})
	if err != nil {
		t.Fatalf("clear alt: %v", err)
	}
	if got.AltText != nil {
		t.Errorf("AltText = %q, want nil", *got.AltText)
	}

	zero := 0
	if _, err := svc.Update(ctx, img.ID, UpdateOpts{SortOrder: &zero}); !errors.Is(err, ErrInvalid) {
		t.Errorf("sort order 0 err = %v", err)
	}
	if _, err := svc.Update(ctx, 999, UpdateOpts{SortOrder: &order}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing image err = %v", err)
	}
}

func TestDelete_PromotesNextMain(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	first := upload(t, svc, pngBytes(t))
	second := upload(t, svc, pngBytes(t))
	third := upload(t, svc, pngBytes(t))

	if err := svc.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(svc.FilePath(first.URL)); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	if _, err := svc.Get(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get deleted err = %v", err)
	}
	s, _ := svc.Get(ctx, second.ID)
	th, _ := svc.Get(ctx, third.ID)
	if !s.IsMain || th.IsMain {
		t.Errorf("main flags after delete: second=%v third=%v", s.IsMain, th.IsMain)
	}
}

func TestDelete_MissingFileStillDeletesRow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	img := upload(t, svc, pngBytes(t))
	if err := os.Remove(svc.FilePath(img.URL)); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, img.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, img.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}
