package packages

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/clawtools/clawtools/internal/config"
	"github.com/clawtools/clawtools/internal/db/models"
	"github.com/clawtools/clawtools/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errDB = errors.New("db error")

func duplicateKeyErr() error {
	return &pq.Error{Code: "23505"}
}

// ---------------------------------------------------------------------------
// Column definitions (positional order must match Scan calls)
// ---------------------------------------------------------------------------

var packageCols = []string{
	"id", "name", "slug", "description", "long_description", "category", "subcategory",
	"version", "author", "license", "magnet_uri", "info_hash", "checksum", "size_bytes", "size_display",
	"platform", "compatibility", "dependencies", "source_url", "homepage", "icon_url", "tags",
	"downloads", "rating", "review_count", "seeders", "status", "featured", "created_at", "updated_at",
}

var versionCols = []string{
	"id", "package_id", "version", "magnet_uri", "checksum", "size_bytes", "changelog", "created_at",
}

var reviewCols = []string{
	"id", "package_id", "reviewer", "reviewer_type", "rating", "review",
	"works_on", "issues", "created_at",
}

var categoryCols = []string{"id", "name", "slug", "description", "icon", "parent_id", "sort_order"}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func samplePackageRow() *sqlmock.Rows {
	return sqlmock.NewRows(packageCols).
		AddRow("pkg-1", "Cool Tool", "cool-tool", "A very cool tool", nil, "software", nil,
			"1.2.0", "acme", "MIT", "magnet:?xt=urn:btih:abc", nil, nil, nil, nil,
			`["linux","macos"]`, `["claude"]`, "[]", nil, nil, nil, `["cli"]`,
			int64(42), 4.5, 3, 7, "published", false, time.Now(), time.Now())
}

func sampleVersionRows() *sqlmock.Rows {
	return sqlmock.NewRows(versionCols).
		AddRow("ver-2", "pkg-1", "1.2.0", "magnet:?xt=urn:btih:abc", nil, nil, nil, time.Now()).
		AddRow("ver-1", "pkg-1", "1.0.0", "magnet:?xt=urn:btih:old", nil, nil, nil, time.Now().Add(-time.Hour))
}

func sampleReviewRows() *sqlmock.Rows {
	return sqlmock.NewRows(reviewCols).
		AddRow("rev-1", "pkg-1", "scout-7", "agent", 5, nil, `["linux"]`, "[]", time.Now())
}

func sampleCategoryRow() *sqlmock.Rows {
	return sqlmock.NewRows(categoryCols).
		AddRow("cat-software", "Software", "software", nil, "package", nil, 2)
}

func countRow(n int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

// ---------------------------------------------------------------------------
// Router helpers
// ---------------------------------------------------------------------------

// fakeAgentIdentity simulates the identity middleware resolving an agent.
func fakeAgentIdentity(agent *models.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.AgentKey, agent)
		c.Set(middleware.AgentIDKey, agent.ID)
		c.Next()
	}
}

func newPackagesRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, _ := sqlmock.New()
	t.Cleanup(func() { db.Close() })
	cfg := &config.Config{}
	r := gin.New()
	r.GET("/api/v1/packages", SearchHandler(db, cfg))
	r.GET("/api/v1/packages/trending", TrendingHandler(db, cfg))
	r.GET("/api/v1/packages/featured", FeaturedHandler(db, cfg))
	r.GET("/api/v1/packages/:slug", GetHandler(db, cfg))
	r.GET("/api/v1/packages/:slug/versions", VersionsHandler(db, cfg))
	r.GET("/api/v1/packages/:slug/reviews", ListReviewsHandler(db, cfg))
	r.POST("/api/v1/packages/:slug/download", DownloadHandler(db, cfg))
	r.POST("/api/v1/packages", PublishHandler(db, cfg))
	return mock, r
}

func newReviewRouter(t *testing.T, agent *models.Agent) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, _ := sqlmock.New()
	t.Cleanup(func() { db.Close() })
	r := gin.New()
	r.POST("/api/v1/packages/:slug/reviews",
		fakeAgentIdentity(agent),
		CreateReviewHandler(db, &config.Config{}))
	return mock, r
}

func doGET(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func doPOST(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// SearchHandler tests
// ---------------------------------------------------------------------------

func TestSearchHandler_Success(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT COUNT.*FROM packages").WillReturnRows(countRow(1))
	mock.ExpectQuery("SELECT.*FROM packages.*ORDER BY").WillReturnRows(samplePackageRow())

	w := doGET(r, "/api/v1/packages?q=cool")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Packages []models.Package `json:"packages"`
		Meta     struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
			Total  int `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Packages) != 1 {
		t.Fatalf("len(packages) = %d, want 1", len(resp.Packages))
	}
	if resp.Meta.Total != 1 || resp.Meta.Limit != 20 || resp.Meta.Offset != 0 {
		t.Errorf("meta = %+v, want total=1 limit=20 offset=0", resp.Meta)
	}
}

func TestSearchHandler_MalformedLimitFallsBack(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT COUNT.*FROM packages").WillReturnRows(countRow(0))
	mock.ExpectQuery("SELECT.*FROM packages.*ORDER BY").
		WithArgs("published", 20, 0).
		WillReturnRows(sqlmock.NewRows(packageCols))

	w := doGET(r, "/api/v1/packages?limit=banana")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSearchHandler_DBError(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT COUNT.*FROM packages").WillReturnError(errDB)

	w := doGET(r, "/api/v1/packages")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GetHandler tests
// ---------------------------------------------------------------------------

func TestGetHandler_Success(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM packages WHERE slug").WillReturnRows(samplePackageRow())

	w := doGET(r, "/api/v1/packages/cool-tool")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var pkg models.Package
	if err := json.Unmarshal(w.Body.Bytes(), &pkg); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if pkg.Slug != "cool-tool" {
		t.Errorf("slug = %q, want cool-tool", pkg.Slug)
	}
}

func TestGetHandler_NotFound(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM packages WHERE slug").WillReturnRows(sqlmock.NewRows(packageCols))

	w := doGET(r, "/api/v1/packages/no-such-package")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetHandler_DBError(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM packages WHERE slug").WillReturnError(errDB)

	w := doGET(r, "/api/v1/packages/cool-tool")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// VersionsHandler / TrendingHandler / FeaturedHandler tests
// ---------------------------------------------------------------------------

func TestVersionsHandler_Success(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM versions.*JOIN packages").WillReturnRows(sampleVersionRows())

	w := doGET(r, "/api/v1/packages/cool-tool/versions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Versions []models.Version `json:"versions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Versions) != 2 {
		t.Errorf("len(versions) = %d, want 2", len(resp.Versions))
	}
}

func TestTrendingHandler_Success(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM packages.*ORDER BY downloads DESC").WillReturnRows(samplePackageRow())

	w := doGET(r, "/api/v1/packages/trending")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
}

func TestFeaturedHandler_DBError(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM packages.*featured").WillReturnError(errDB)

	w := doGET(r, "/api/v1/packages/featured")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// DownloadHandler tests
// ---------------------------------------------------------------------------

func TestDownloadHandler_Success(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM packages WHERE slug").WillReturnRows(samplePackageRow())
	mock.ExpectExec("UPDATE packages.*downloads").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doPOST(r, "/api/v1/packages/cool-tool/download", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		MagnetURI string `json:"magnet_uri"`
		Downloads int64  `json:"downloads"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.MagnetURI != "magnet:?xt=urn:btih:abc" {
		t.Errorf("magnet_uri = %q", resp.MagnetURI)
	}
	if resp.Downloads != 43 {
		t.Errorf("downloads = %d, want 43", resp.Downloads)
	}
}

func TestDownloadHandler_NotFound(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM packages WHERE slug").WillReturnRows(sqlmock.NewRows(packageCols))

	w := doPOST(r, "/api/v1/packages/no-such-package/download", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// PublishHandler tests
// ---------------------------------------------------------------------------

func validPublishBody() map[string]interface{} {
	return map[string]interface{}{
		"name":        "My Cool Tool",
		"description": "Does cool things",
		"category":    "software",
		"version":     "1.0.0",
		"author":      "acme",
		"magnet_uri":  "magnet:?xt=urn:btih:abc",
		"platform":    []string{"linux"},
	}
}

func TestPublishHandler_Success(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM categories.*WHERE slug").WillReturnRows(sampleCategoryRow())
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO packages").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO versions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := doPOST(r, "/api/v1/packages", validPublishBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Slug != "my-cool-tool" {
		t.Errorf("slug = %q, want my-cool-tool", resp.Slug)
	}
	if resp.ID == "" {
		t.Error("id is empty")
	}
}

func TestPublishHandler_MissingName(t *testing.T) {
	_, r := newPackagesRouter(t)

	body := validPublishBody()
	body["name"] = ""
	body["author"] = "acme" // explicit author so the identity fallback is irrelevant

	w := doPOST(r, "/api/v1/packages", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
	}
}

func TestPublishHandler_BadVersion(t *testing.T) {
	_, r := newPackagesRouter(t)

	body := validPublishBody()
	body["version"] = "not-a-version"

	w := doPOST(r, "/api/v1/packages", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPublishHandler_BadMagnetURI(t *testing.T) {
	_, r := newPackagesRouter(t)

	body := validPublishBody()
	body["magnet_uri"] = "https://example.com/file.tgz"

	w := doPOST(r, "/api/v1/packages", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPublishHandler_UnknownCategory(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM categories.*WHERE slug").WillReturnRows(sqlmock.NewRows(categoryCols))

	body := validPublishBody()
	body["category"] = "not-a-category"

	w := doPOST(r, "/api/v1/packages", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
	}
}

func TestPublishHandler_DuplicateName(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM categories.*WHERE slug").WillReturnRows(sampleCategoryRow())
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO packages").WillReturnError(duplicateKeyErr())
	mock.ExpectRollback()

	w := doPOST(r, "/api/v1/packages", validPublishBody())
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Review handler tests
// ---------------------------------------------------------------------------

func TestListReviewsHandler_Success(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM reviews.*JOIN packages").WillReturnRows(sampleReviewRows())

	w := doGET(r, "/api/v1/packages/cool-tool/reviews")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Reviews []models.Review `json:"reviews"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Reviews) != 1 {
		t.Errorf("len(reviews) = %d, want 1", len(resp.Reviews))
	}
}

func TestListReviewsHandler_UnknownSlugIsEmptyList(t *testing.T) {
	mock, r := newPackagesRouter(t)

	mock.ExpectQuery("SELECT.*FROM reviews.*JOIN packages").WillReturnRows(sqlmock.NewRows(reviewCols))

	w := doGET(r, "/api/v1/packages/no-such-package/reviews")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Reviews []models.Review `json:"reviews"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Reviews) != 0 {
		t.Errorf("len(reviews) = %d, want 0", len(resp.Reviews))
	}
}

func TestCreateReviewHandler_AgentSuccess(t *testing.T) {
	agent := &models.Agent{ID: "agent-1", Name: "scout-7"}
	mock, r := newReviewRouter(t, agent)

	mock.ExpectQuery("SELECT.*FROM packages WHERE slug").WillReturnRows(samplePackageRow())
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM packages.*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("pkg-1"))
	mock.ExpectQuery("INSERT INTO reviews").
		WithArgs(sqlmock.AnyArg(), "pkg-1", "scout-7", "agent", 5, nil, `["linux"]`, "[]").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery("SELECT COALESCE.*FROM reviews").
		WillReturnRows(sqlmock.NewRows([]string{"avg", "count"}).AddRow(4.5, 4))
	mock.ExpectExec("UPDATE packages").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := doPOST(r, "/api/v1/packages/cool-tool/reviews", map[string]interface{}{
		"rating":   5,
		"works_on": []string{"linux"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateReviewHandler_RatingOutOfRange(t *testing.T) {
	agent := &models.Agent{ID: "agent-1", Name: "scout-7"}
	mock, r := newReviewRouter(t, agent)

	mock.ExpectQuery("SELECT.*FROM packages WHERE slug").WillReturnRows(samplePackageRow())

	w := doPOST(r, "/api/v1/packages/cool-tool/reviews", map[string]interface{}{
		"rating": 6,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
	}
}

func TestCreateReviewHandler_PackageNotFound(t *testing.T) {
	agent := &models.Agent{ID: "agent-1", Name: "scout-7"}
	mock, r := newReviewRouter(t, agent)

	mock.ExpectQuery("SELECT.*FROM packages WHERE slug").WillReturnRows(sqlmock.NewRows(packageCols))

	w := doPOST(r, "/api/v1/packages/no-such-package/reviews", map[string]interface{}{
		"rating": 4,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCreateReviewHandler_AnonymousRejected(t *testing.T) {
	db, _, _ := sqlmock.New()
	t.Cleanup(func() { db.Close() })
	r := gin.New()
	r.POST("/api/v1/packages/:slug/reviews", CreateReviewHandler(db, &config.Config{}))

	w := doPOST(r, "/api/v1/packages/cool-tool/reviews", map[string]interface{}{
		"rating": 4,
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
