package api

import (
	"bytes"
	"encoding/json"
	stdimage "image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/zulandar/perfumery/internal/config"
	"github.com/zulandar/perfumery/internal/db"
	"github.com/zulandar/perfumery/internal/image"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router http.Handler
	dir    string
}

func newTestServer(t *testing.T) *testServer {
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
	if err := db.SeedReference(gormDB, db.Reference{
		Brands: []string{"Atelier"}, Densities: []string{"EDT"}, Genders: []string{"male"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	dir := t.TempDir()
	log := zerolog.New(io.Discard)
	svc := image.NewService(gormDB, image.Options{PublicDir: dir, PublicPrefix: "/public/", BasePath: "/images/", MaxBytes: 1 << 20}, log)
	router := NewRouter(Deps{
		DB:             gormDB,
		Images:         svc,
		Log:            log,
		Registry:       prometheus.NewRegistry(),
		PublicDir:      dir,
		PublicPrefix:   "/public/",
		MaxUploadBytes: 1 << 20,
	})
	return &testServer{router: router, dir: dir}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, article string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if article != "" {
		mw.WriteField("article", article)
	}
	mw.WriteField("altText", "bottle")
	if data != nil {
		fw, err := mw.CreateFormFile("file", "photo.png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload-image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func pngData(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, stdimage.NewRGBA(stdimage.Rect(0, 0, 3, 3))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const newPerfume = `{"name":"Vetiver","fullName":"Atelier Vetiver EDT","price":75.5,"releaseYear":2015,"brandId":1,"densityId":1,"genderId":1}`

func (s *testServer) createPerfume(t *testing.T) int {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/perfumes", newPerfume)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	return decode[struct {
		Article int `json:"article"`
	}](t, w).Article
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestPerfume_CreateGetList(t *testing.T) {
	s := newTestServer(t)
	article := s.createPerfume(t)

	w := s.do(t, http.MethodGet, "/api/perfumes/"+strconv.Itoa(article), "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", w.Code, w.Body.String())
	}
	got := decode[map[string]any](t, w)
	if got["fullName"] != "Atelier Vetiver EDT" {
		t.Errorf("fullName = %v", got["fullName"])
	}
	if brand, _ := got["brand"].(map[string]any); brand["name"] != "Atelier" {
		t.Errorf("brand = %v", got["brand"])
	}

	w = s.do(t, http.MethodGet, "/api/perfumes?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[[]perfumeSummary](t, w)
	if len(list) != 1 || list[0].Brand != "Atelier" || list[0].Gender != "male" || list[0].Density != "EDT" {
		t.Errorf("list = %+v", list)
	}
	if list[0].ImageURL != nil {
		t.Errorf("imageUrl = %q, want null", *list[0].ImageURL)
	}
}

func TestPerfume_ListBadQuery(t *testing.T) {
	s := newTestServer(t)
	for _, q := range []string{"limit=0x", "limit=101", "offset=-1"} {
		if w := s.do(t, http.MethodGet, "/api/perfumes?"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestPerfume_CreateValidation(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name, body, detail string
	}{
		{"missing name", `{"fullName":"x","price":1,"brandId":1,"densityId":1,"genderId":1}`, "name"},
		{"year too old", `{"name":"x","fullName":"x","price":1,"releaseYear":1700,"brandId":1,"densityId":1,"genderId":1}`, "releaseYear"},
		{"missing price", `{"name":"x","fullName":"x","brandId":1,"densityId":1,"genderId":1}`, "price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/perfumes", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			resp := decode[struct {
				Details map[string]string `json:"details"`
			}](t, w)
			if _, ok := resp.Details[tt.detail]; !ok {
				t.Errorf("details = %v, want key %q", resp.Details, tt.detail)
			}
		})
	}

	if w := s.do(t, http.MethodPost, "/api/perfumes", `{"name":"x","bogus":1}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d", w.Code)
	}
	unknownBrand := strings.Replace(newPerfume, `"brandId":1`, `"brandId":9`, 1)
	if w := s.do(t, http.MethodPost, "/api/perfumes", unknownBrand); w.Code != http.StatusBadRequest {
		t.Errorf("unknown brand status = %d", w.Code)
	}
}

func TestPerfume_NotFoundAndBadParam(t *testing.T) {
	s := newTestServer(t)
	if w := s.do(t, http.MethodGet, "/api/perfumes/12345", ""); w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/perfumes/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad article status = %d", w.Code)
	}
	if w := s.do(t, http.MethodPut, "/api/perfumes/12345", `{"name":"y"}`); w.Code != http.StatusNotFound {
		t.Errorf("update missing status = %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/perfumes/12345", ""); w.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d", w.Code)
	}
}

func TestPerfume_UpdateAndDelete(t *testing.T) {
	s := newTestServer(t)
	article := s.createPerfume(t)
	path := "/api/perfumes/" + strconv.Itoa(article)

	w := s.do(t, http.MethodPut, path, `{"name":"Vetiver Extreme","releaseYear":null,"price":"99.00"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}
	got := decode[map[string]any](t, w)
	if got["name"] != "Vetiver Extreme" {
		t.Errorf("name = %v", got["name"])
	}
	if got["releaseYear"] != nil {
		t.Errorf("releaseYear = %v, want null", got["releaseYear"])
	}

	if w := s.do(t, http.MethodPut, path, `{"releaseYear":3000}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad year status = %d", w.Code)
	}

	if w := s.do(t, http.MethodDelete, path, ""); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", w.Code)
	}
}

func TestImage_UploadServeUpdateDelete(t *testing.T) {
	s := newTestServer(t)
	article := s.createPerfume(t)

	w := s.upload(t, strconv.Itoa(article), pngData(t))
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", w.Code, w.Body.String())
	}
	type imageJSON struct {
		ID        uint    `json:"id"`
		URL       string  `json:"url"`
		IsMain    bool    `json:"isMain"`
		SortOrder int     `json:"sortOrder"`
		AltText   *string `json:"altText"`
	}
	first := decode[struct {
		Success bool      `json:"success"`
		Image   imageJSON `json:"image"`
	}](t, w).Image
	prefix := "/public/images/" + strconv.Itoa(article) + "/"
	if !strings.HasPrefix(first.URL, prefix) || !first.IsMain || first.SortOrder != 1 {
		t.Errorf("first = %+v", first)
	}
	if first.AltText == nil || *first.AltText != "bottle" {
		t.Errorf("altText = %v", first.AltText)
	}

	if w := s.do(t, http.MethodGet, first.URL, ""); w.Code != http.StatusOK {
		t.Errorf("static fetch status = %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/perfumes", "")
	list := decode[[]perfumeSummary](t, w)
	if len(list) != 1 || list[0].ImageURL == nil || *list[0].ImageURL != first.URL {
		t.Errorf("list imageUrl = %+v", list)
	}

	second := decode[struct {
		Image imageJSON `json:"image"`
	}](t, s.upload(t, strconv.Itoa(article), pngData(t))).Image
	if second.IsMain || second.SortOrder != 2 {
		t.Errorf("second = %+v", second)
	}

	w = s.do(t, http.MethodPut, "/api/images/"+strconv.Itoa(int(second.ID)), `{"isMain":true,"altText":null}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update image status = %d: %s", w.Code, w.Body.String())
	}
	updated := decode[imageJSON](t, w)
	if !updated.IsMain || updated.AltText != nil {
		t.Errorf("updated = %+v", updated)
	}

	w = s.do(t, http.MethodGet, "/api/perfumes/"+strconv.Itoa(article), "")
	detail := decode[struct {
		Images []imageJSON `json:"images"`
	}](t, w)
	mains := 0
	for _, img := range detail.Images {
		if img.IsMain {
			mains++
		}
	}
	if mains != 1 {
		t.Errorf("main images = %d, want 1", mains)
	}

	if w := s.do(t, http.MethodDelete, "/api/images/"+strconv.Itoa(int(second.ID)), ""); w.Code != http.StatusOK {
		t.Fatalf("delete image status = %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/images/"+strconv.Itoa(int(second.ID)), ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", w.Code)
	}
	if w := s.do(t, http.MethodPut, "/api/images/999", `{"sortOrder":0}`); w.Code != http.StatusBadRequest {
		t.Errorf("sortOrder 0 status = %d", w.Code)
	}
}

func TestImage_UploadRejections(t *testing.T) {
	s := newTestServer(t)
	article := strconv.Itoa(s.createPerfume(t))
	tests := []struct {
		name    string
		article string
		data    []byte
		want    int
	}{
		{"no file", article, nil, http.StatusBadRequest},
		{"no article", "", pngData(t), http.StatusBadRequest},
		{"bad article", "-3", pngData(t), http.StatusBadRequest},
		{"unknown perfume", "424242", pngData(t), http.StatusBadRequest},
		{"not an image", article, []byte("plain text"), http.StatusBadRequest},
		{"too large", article, append(pngData(t), make([]byte, 1<<20)...), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.upload(t, tt.article, tt.data); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/perfumes", "")
	w := s.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `perfumery_http_requests_total{method="GET",route="/api/perfumes",status="200"} 1`) {
		t.Errorf("metrics missing request counter:\n%s", body)
	}
}

func TestStart_RequiresDeps(t *testing.T) {
	if err := Start(t.Context(), StartOpts{}); err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Errorf("err = %v", err)
	}
}
