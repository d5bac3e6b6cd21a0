package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

// assertJSONName checks the json tag name of a field.
func assertJSONName(t *testing.T, typ reflect.Type, fieldName, want string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	name := strings.Split(f.Tag.Get("json"), ",")[0]
	if name != want {
		t.Errorf("%s.%s json name = %q, want %q", typ.Name(), fieldName, name, want)
	}
}

func TestPerfume_Fields(t *testing.T) {
	typ := reflect.TypeOf(Perfume{})

	assertGormTag(t, typ, "Article", "primaryKey")
	assertGormTag(t, typ, "Name", "not null")
	assertGormTag(t, typ, "FullName", "not null")
	assertGormTag(t, typ, "Description", "type:text")
	assertGormTag(t, typ, "Price", "decimal(10,2)")
	assertGormTag(t, typ, "BrandID", "index")

	assertFieldType(t, typ, "Article", "int")
	assertFieldType(t, typ, "Description", "*string")
	assertFieldType(t, typ, "Price", "decimal.Decimal")
	assertFieldType(t, typ, "ReleaseYear", "*int")

	assertJSONName(t, typ, "FullName", "fullName")
	assertJSONName(t, typ, "ReleaseYear", "releaseYear")
	assertJSONName(t, typ, "CreatedAt", "-")
}

func TestPerfume_Relations(t *testing.T) {
	typ := reflect.TypeOf(Perfume{})

	assertGormTag(t, typ, "Brand", "foreignKey:BrandID")
	assertGormTag(t, typ, "Density", "foreignKey:DensityID")
	assertGormTag(t, typ, "Gender", "foreignKey:GenderID")
	assertGormTag(t, typ, "Images", "foreignKey:Article")
	assertGormTag(t, typ, "Images", "OnDelete:CASCADE")

	assertFieldType(t, typ, "Images", "[]models.PerfumeImage")
}

func TestPerfumeImage_UniqueArticleURL(t *testing.T) {
	typ := reflect.TypeOf(PerfumeImage{})

	assertGormTag(t, typ, "Article", "uniqueIndex:idx_perfume_image_article_url")
	assertGormTag(t, typ, "URL", "uniqueIndex:idx_perfume_image_article_url")
	assertGormTag(t, typ, "IsMain", "default:false")

	assertFieldType(t, typ, "AltText", "*string")
	assertJSONName(t, typ, "IsMain", "isMain")
	assertJSONName(t, typ, "SortOrder", "sortOrder")
	assertJSONName(t, typ, "AltText", "altText")
}

func TestReference_UniqueNames(t *testing.T) {
	assertGormTag(t, reflect.TypeOf(Brand{}), "Name", "uniqueIndex")
	assertGormTag(t, reflect.TypeOf(Density{}), "Name", "uniqueIndex")
	assertGormTag(t, reflect.TypeOf(Gender{}), "Gender", "uniqueIndex")
}
