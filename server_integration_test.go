package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"labelscan/models"
	"labelscan/pkg/analyzer"
	"labelscan/pkg/classify"
	"labelscan/pkg/ocr"
	"labelscan/pkg/testutil"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// labelExtractor stands in for tesseract so the flow runs without it.
type labelExtractor struct{}

func (labelExtractor) ExtractText(ctx context.Context, img image.Image) (*ocr.Text, error) {
	text := "INGREDIENTS: whole wheat flour, sugar, soy lecithin, sodium benzoate, red 40"
	best := ocr.Result{Text: text, Confidence: 90, Profile: "block", Candidate: ocr.MethodAdaptive}
	return &ocr.Text{Text: text, Best: best, Results: []ocr.Result{best}}, nil
}

func ensureUser(t *testing.T, username, password, role string) {
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		return
	}
	var r models.Role
	if err := db.Where("name = ?", role).First(&r).Error; err != nil {
		t.Fatalf("role %s missing: %v", role, err)
	}
	hpw, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	rid := r.ID
	if err := db.Create(&models.User{Username: username, HashedPassword: hpw, RoleID: &rid}).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
}

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	cfg.DB.DSN = os.Getenv("DB_DSN")
	initDB()
	ensureUser(t, "user1", "pass1", models.RoleUser)
	ensureUser(t, "user2", "pass2", models.RoleUser)

	cache := classify.NewLRU(16)
	classifyCache = cache
	svc = analyzer.New(labelExtractor{}, classify.New(&testutil.MockGenerator{}, classify.WithCache(cache)), analyzer.WithStore(analyses))
	ocrSem = make(chan struct{}, 1)

	r := gin.New()
	setupRoutes(r)
	return r
}

func login(t *testing.T, r http.Handler, username, password string) string {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp := performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(body), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}
	return token
}

func analyzeText(t *testing.T, r http.Handler, token, text, product string) string {
	body, _ := json.Marshal(map[string]string{"type": "text", "content": text, "product_name": product})
	resp := performRequest(r, http.MethodPost, "/analyze", bytes.NewBuffer(body), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("analyze failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var out struct {
		ID     string          `json:"id"`
		Result analyzer.Result `json:"result"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	if out.ID == "" || out.Result.HealthScore != 8.7 {
		t.Fatalf("unexpected analyze response: %s", resp.Body.String())
	}
	return out.ID
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)
	token := login(t, r, "user1", "pass1")

	// 1. Text analysis, twice for comparison
	first := analyzeText(t, r, token, "Ingredients: oats, honey, salt", "Granola")
	second := analyzeText(t, r, token, "sugar, corn syrup, red 40", "")

	// 2. Image analysis (multipart)
	var pngBuf bytes.Buffer
	_ = png.Encode(&pngBuf, image.NewGray(image.Rect(0, 0, 8, 8)))
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	_ = mw.WriteField("product_name", "Crackers")
	w, _ := mw.CreateFormFile("file", "label.png")
	_, _ = w.Write(pngBuf.Bytes())
	_ = mw.Close()
	resp := performRequest(r, http.MethodPost, "/analyze", buf, token, mw.FormDataContentType())
	if resp.Code != 200 {
		t.Fatalf("image analyze failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 3. Validation failure surfaces as a tagged outcome
	bad, _ := json.Marshal(map[string]string{"type": "text", "content": "123, !!"})
	resp = performRequest(r, http.MethodPost, "/analyze", bytes.NewBuffer(bad), token, "application/json")
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for symbol-only text got %d body=%s", resp.Code, resp.Body.String())
	}

	// 4. Get, list, stats
	resp = performRequest(r, http.MethodGet, "/analyses/"+first, nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("get analysis failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/analyses", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("list analyses failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/analyses/stats", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("stats failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 5. Compare needs exactly two
	cmpBody, _ := json.Marshal(map[string][]string{"analysis_ids": {first, second}})
	resp = performRequest(r, http.MethodPost, "/analyses/compare", bytes.NewBuffer(cmpBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("compare failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	oneBody, _ := json.Marshal(map[string][]string{"analysis_ids": {first}})
	resp = performRequest(r, http.MethodPost, "/analyses/compare", bytes.NewBuffer(oneBody), token, "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 comparing one analysis got %d", resp.Code)
	}

	// 6. Another user cannot read it
	other := login(t, r, "user2", "pass2")
	if resp := performRequest(r, http.MethodGet, "/analyses/"+first, nil, other, ""); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign analysis got %d", resp.Code)
	}

	// 7. Delete then 404
	resp = performRequest(r, http.MethodDelete, "/analyses/"+second, nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("delete failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	if resp := performRequest(r, http.MethodGet, "/analyses/"+second, nil, token, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete got %d", resp.Code)
	}

	// 8. Unauthorized access to protected endpoint should be 401
	unauth := performRequest(r, http.MethodGet, "/analyses", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list got %d", unauth.Code)
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	cfg.DB.DSN = os.Getenv("DB_DSN")
	initDB()
}
