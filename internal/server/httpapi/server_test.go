package httpapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/server/api"
	"github.com/dmitrijs2005/datakeeper/internal/server/auth"
	"github.com/dmitrijs2005/datakeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/datakeeper/internal/server/catalog"
	"github.com/dmitrijs2005/datakeeper/internal/server/config"
	"github.com/dmitrijs2005/datakeeper/internal/server/jobs"
	"github.com/dmitrijs2005/datakeeper/internal/server/keyring"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/datakeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const secret = "test-secret"

// newTestServer wires the real services over an in-memory sqlite database.
func newTestServer(t *testing.T, jobURL string) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite", "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	rm := repomanager.NewSQLRepositoryManager(dbx.SQLite)
	require.NoError(t, rm.RunMigrations(ctx, db))
	_, err = db.Exec(`CREATE TABLE employees (id INTEGER PRIMARY KEY, name TEXT NOT NULL, dept TEXT, hired_on TEXT, attrs TEXT)`)
	require.NoError(t, err)

	resolver, err := catalog.NewResolver(ctx, catalog.FileSource{Path: "../catalog/testdata/catalog.yaml"}, 0, logging.Discard())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()

	ring, err := keyring.New([]keyring.Spec{{Version: 1, Secret: base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))}}, 0)
	require.NoError(t, err)

	var dispatcher jobs.Dispatcher = jobs.Disabled{}
	if jobURL != "" {
		dispatcher = jobs.NewHTTPDispatcher(jobURL, 0, 0, nil, logging.Discard())
	}

	backend := &api.Backend{
		Data:  services.NewDataService(db, rm, resolver, cfg, logging.Discard()),
		Files: services.NewFileService(db, rm, resolver, ring, blobstore.NewDBStore(rm.Blobs(db)), cfg, logging.Discard()),
		Jobs:  dispatcher,
	}

	srv := httptest.NewServer(NewHTTPServer("", logging.Discard(), backend, secret, 5*time.Second).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func token(t *testing.T, scopes []string, docTypes []string) string {
	t.Helper()
	tok, err := auth.GenerateToken(auth.Claims{UserID: "u-1", OrgID: "org-1", Scopes: scopes, DocumentTypes: docTypes}, []byte(secret), time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, method, url, tok, contentType string, body []byte) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, "")
	status, body := do(t, http.MethodGet, srv.URL+"/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestUpsertAndRead(t *testing.T) {
	srv := newTestServer(t, "")
	tok := token(t, []string{"data.read", "data.write"}, nil)

	status, body := do(t, http.MethodPost, srv.URL+"/v1/data/upsert", tok, "application/json",
		[]byte(`{"config_id":"emp-config-1","input_rows":[{"id":1,"name":"Ada","dept":"eng"},{"id":2,"name":"Grace"}]}`))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["inserted"])
	assert.Equal(t, []any{}, body["errors"])

	status, body = do(t, http.MethodPost, srv.URL+"/v1/data/upsert", tok, "application/json",
		[]byte(`{"config_id":"emp-config-1","input_rows":[{"id":1,"dept":"research"}]}`))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(1), body["updated"])

	status, body = do(t, http.MethodPost, srv.URL+"/v1/data/read", tok, "application/json",
		[]byte(`{"config_id":"emp-config-1","filter":{"equals":{"id":1}}}`))
	require.Equal(t, http.StatusOK, status, body)
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "Ada", row["name"])
	assert.Equal(t, "research", row["dept"])
}

func TestErrorStatuses(t *testing.T) {
	srv := newTestServer(t, "")
	rw := token(t, []string{"data.read", "data.write"}, nil)
	ro := token(t, []string{"data.read"}, nil)

	tests := []struct {
		name   string
		tok    string
		path   string
		body   string
		status int
	}{
		{"missing credential", "", "/v1/data/read", `{"config_id":"emp-config-1"}`, http.StatusBadRequest},
		{"invalid token", "garbage", "/v1/data/read", `{"config_id":"emp-config-1"}`, http.StatusUnauthorized},
		{"unknown config", rw, "/v1/data/read", `{"config_id":"unknown-cfg"}`, http.StatusNotFound},
		{"disabled config", rw, "/v1/data/read", `{"config_id":"emp-archive"}`, http.StatusNotFound},
		{"no write scope", ro, "/v1/data/upsert", `{"config_id":"emp-config-1","input_rows":[{"id":1,"name":"a"}]}`, http.StatusNotFound},
		{"read-only config", ro, "/v1/data/upsert", `{"config_id":"permitted-document-types","input_rows":[{"id":1}]}`, http.StatusForbidden},
		{"validation", rw, "/v1/data/upsert", `{"config_id":"emp-config-1","input_rows":[{"name":"a"}]}`, http.StatusBadRequest},
		{"malformed json", rw, "/v1/data/upsert", `{"config_id":`, http.StatusBadRequest},
		{"unknown field", rw, "/v1/data/upsert", `{"cfg":"emp-config-1"}`, http.StatusBadRequest},
		{"trailing data", rw, "/v1/data/read", `{"config_id":"emp-config-1"}garbage`, http.StatusBadRequest},
		{"jobs not configured", rw, "/v1/jobs", `{"job":{"name":"x"}}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, http.MethodPost, srv.URL+tt.path, tt.tok, "application/json", []byte(tt.body))
			assert.Equal(t, tt.status, status, body)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["message"])
		})
	}

	t.Run("validation lists violations", func(t *testing.T) {
		_, body := do(t, http.MethodPost, srv.URL+"/v1/data/upsert", rw, "application/json",
			[]byte(`{"config_id":"emp-config-1","input_rows":[{"name":"a"}]}`))
		errs := body["errors"].([]any)
		require.Len(t, errs, 1)
		assert.Equal(t, "id", errs[0].(map[string]any)["column"])
	})
}

func TestFiles_MultipartRoundTrip(t *testing.T) {
	srv := newTestServer(t, "")
	tok := token(t, nil, []string{"passport"})

	data := make([]byte, 1024)
	_, err := rand.Read(data)
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="files"; filename="scan.pdf"`)
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	status, body := do(t, http.MethodPost, srv.URL+"/v1/files/passport", tok, mw.FormDataContentType(), buf.Bytes())
	require.Equal(t, http.StatusOK, status, body)
	files := body["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, "scan.pdf", files[0].(map[string]any)["name"])

	// token as query parameter
	status, body = do(t, http.MethodGet, srv.URL+"/v1/files/passport?token="+tok, "", "", nil)
	require.Equal(t, http.StatusOK, status, body)
	listed := body["files"].([]any)
	require.Len(t, listed, 1)
	got, err := base64.StdEncoding.DecodeString(listed[0].(map[string]any)["bytes"].(string))
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "application/pdf", listed[0].(map[string]any)["content_type"])
}

func TestFiles_JSONUploadAndAuthorization(t *testing.T) {
	srv := newTestServer(t, "")
	tok := token(t, nil, []string{"passport"})

	body := `{"files":[{"name":"a.bin","bytes":"` + base64.StdEncoding.EncodeToString([]byte("hello")) + `"}]}`
	status, resp := do(t, http.MethodPost, srv.URL+"/v1/files/passport", tok, "application/json", []byte(body))
	require.Equal(t, http.StatusOK, status, resp)

	status, _ = do(t, http.MethodPost, srv.URL+"/v1/files/contract", tok, "application/json", []byte(body))
	assert.Equal(t, http.StatusForbidden, status)

	visa := token(t, nil, []string{"visa"})
	status, _ = do(t, http.MethodGet, srv.URL+"/v1/files/visa", visa, "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/v1/files/passport", tok, "text/plain", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDispatchJob(t *testing.T) {
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		_, _ = w.Write([]byte(`{"job_id":"j-1","status":"queued"}`))
	}))
	defer platform.Close()

	srv := newTestServer(t, platform.URL)
	tok := token(t, nil, nil)

	status, body := do(t, http.MethodPost, srv.URL+"/v1/jobs", tok, "application/json", []byte(`{"job":{"name":"reindex","payload":{"n":1}}}`))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "j-1", body["job_id"])
	assert.Equal(t, true, body["accepted"])
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := NewHTTPServer("127.0.0.1:0", logging.Discard(), &api.Backend{}, secret, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
