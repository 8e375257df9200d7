package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/scoring"
	"github.com/weison-t/thereader/internal/secret"
	"github.com/weison-t/thereader/internal/service"
	"github.com/weison-t/thereader/internal/storage"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestHandler(objects *storage.MemoryStore) *Handler {
	gin.SetMode(gin.TestMode)
	return &Handler{
		Objects: objects,
		Ingest: &service.Ingestor{
			Objects: objects,
			Logger:  zerolog.Nop(),
			Now:     func() time.Time { return time.UnixMilli(1700000000000) },
		},
		Validator: validator.New(),
		Logger:    zerolog.Nop(),
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body, got %q", w.Body.String())
	}
	return body
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path, dataset, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("type", dataset); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{db.Missing("sampling_data"), http.StatusBadRequest, "INVALID_REQUEST"},
		{fmt.Errorf("upload: %w", service.ErrUnsupportedDataset), http.StatusBadRequest, "INVALID_REQUEST"},
		{service.ErrNotCSV, http.StatusBadRequest, "INVALID_REQUEST"},
		{service.ErrNoStoredFile, http.StatusBadRequest, "INVALID_REQUEST"},
		{scoring.ErrMissingCredential, http.StatusBadRequest, "CONFIG_ERROR"},
		{fmt.Errorf("decrypt api key: %w", secret.ErrNoKey), http.StatusBadRequest, "CONFIG_ERROR"},
		{service.ErrInvalidModel, http.StatusBadRequest, "VALIDATION_ERROR"},
		{db.ErrNoColumns, http.StatusBadRequest, "VALIDATION_ERROR"},
		{pgx.ErrNoRows, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("connection reset"), http.StatusInternalServerError, "DB_ERROR"},
	}
	for _, tc := range cases {
		status, code := errorStatus(tc.err, "DB_ERROR")
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: expected %d %s, got %d %s", tc.err, tc.status, tc.code, status, code)
		}
	}
}

func TestBindRejectsInvalidAction(t *testing.T) {
	h := newTestHandler(storage.NewMemoryStore())
	r := gin.New()
	r.POST("/api/processed-data", h.ProcessedDataAction)
	r.POST("/api/response-result", h.ResponseResultAction)
	r.PUT("/api/settings/api", h.SaveAPISettings)
	r.POST("/api/criteria", h.CriteriaAction)

	cases := []struct {
		method, path, body, code string
	}{
		{http.MethodPost, "/api/processed-data", `{"action":"rebuild"}`, "VALIDATION_ERROR"},
		{http.MethodPost, "/api/processed-data", ``, "VALIDATION_ERROR"},
		{http.MethodPost, "/api/processed-data", `{"action":`, "INVALID_REQUEST"},
		{http.MethodPost, "/api/response-result", `{"action":"process","limit":5000}`, "VALIDATION_ERROR"},
		{http.MethodPut, "/api/settings/api", `{"provider":"Other"}`, "VALIDATION_ERROR"},
		{http.MethodPut, "/api/settings/api", `{"monthly_budget_usd":-1}`, "VALIDATION_ERROR"},
		{http.MethodPost, "/api/criteria", `{"action":"batchUpdate"}`, "VALIDATION_ERROR"},
		{http.MethodPost, "/api/criteria", `{"action":"batchUpdate","updates":[{"id":0,"updates":{"a":"b"}}]}`, "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, jsonRequest(tc.method, tc.path, tc.body))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d", tc.path, tc.body, w.Code)
		}
		if got := decodeError(t, w).Error.Code; got != tc.code {
			t.Fatalf("%s %s: expected %s, got %s", tc.path, tc.body, tc.code, got)
		}
	}
}

func TestUploadRejectsBadInputBeforeStoring(t *testing.T) {
	objects := storage.NewMemoryStore()
	h := newTestHandler(objects)
	r := gin.New()
	r.POST("/api/upload", h.Upload)

	cases := []struct {
		dataset, filename, content string
	}{
		{"sales", "sales.csv", "a,b\n1,2\n"},
		{"raw_chat", "chats.txt", "a,b\n1,2\n"},
		{"agent_info", "roster.csv", ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, multipartRequest(t, "/api/upload", tc.dataset, tc.filename, tc.content))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s/%s: expected 400, got %d: %s", tc.dataset, tc.filename, w.Code, w.Body.String())
		}
		if got := decodeError(t, w).Error.Code; got != "INVALID_REQUEST" {
			t.Fatalf("%s/%s: expected INVALID_REQUEST, got %s", tc.dataset, tc.filename, got)
		}
	}

	objs, err := objects.List(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objs) != 0 {
		t.Fatalf("expected nothing stored, got %d objects", len(objs))
	}
}

func TestUploadRequiresFile(t *testing.T) {
	h := newTestHandler(storage.NewMemoryStore())
	r := gin.New()
	r.POST("/api/upload", h.Upload)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("type", "raw_chat")
	_ = writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUploadsRejectsUnknownType(t *testing.T) {
	h := newTestHandler(storage.NewMemoryStore())
	r := gin.New()
	r.GET("/api/upload", h.Uploads)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/upload?type=sales&preview=1", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUploadsListsLatestObjects(t *testing.T) {
	objects := storage.NewMemoryStore()
	ctx := context.Background()
	key := "raw_chat/1700000000000_chats.csv"
	if err := objects.Put(ctx, key, strings.NewReader("a\n1\n"), 4, "text/csv"); err != nil {
		t.Fatalf("put: %v", err)
	}
	h := newTestHandler(objects)
	r := gin.New()
	r.GET("/api/upload", h.Uploads)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/upload", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]*struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["raw_chat"] == nil || body["raw_chat"].Key != key {
		t.Fatalf("expected latest raw_chat %s, got %s", key, w.Body.String())
	}
	if body["agent_info"] != nil {
		t.Fatalf("expected no agent_info upload, got %+v", body["agent_info"])
	}
}

func TestPresignUpload(t *testing.T) {
	h := newTestHandler(storage.NewMemoryStore())
	r := gin.New()
	r.POST("/api/upload/presign", h.PresignUpload)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/upload/presign", `{"type":"raw_chat","filename":" chats.csv "}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res service.PresignResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(res.Key, "raw_chat/1700000000000_") {
		t.Fatalf("expected key under raw_chat/, got %s", res.Key)
	}
	if !strings.HasPrefix(res.URL, "memory://raw_chat/") {
		t.Fatalf("expected memory URL, got %s", res.URL)
	}
	if res.ExpiresIn != 900 {
		t.Fatalf("expected 900s expiry, got %d", res.ExpiresIn)
	}
}

func TestHealthzIntegration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	store, err := db.New(context.Background(), url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	defer store.Close()

	h := newTestHandler(storage.NewMemoryStore())
	h.Store = store

	r := gin.New()
	r.GET("/healthz", h.Healthz)
	r.GET("/api/health/storage", h.HealthStorage)

	for _, path := range []string{"/healthz", "/api/health/storage"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}
}
