package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tasktally/internal/config"
	"tasktally/internal/db"
	"tasktally/internal/history"
	"tasktally/internal/sheet"
	"tasktally/internal/tally"
)

const testSecret = "test-secret"

type testServer struct {
	URL     string
	client  *http.Client
	History history.Writer
	close   func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	h := history.Writer{DB: conn}
	handler, err := New(Config{
		Projects: []config.Project{{ID: "proj-1", Label: "Example", Sheet: "Dashboard", Row: 2}},
		History:  h,
		Sheets:   sheet.Store{DB: conn},
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:     "http://" + ln.Addr().String(),
		client:  &http.Client{},
		History: h,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func mintToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doGet(t *testing.T, srv *testServer, path, bearer string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res, err := srv.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthIsOpen(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doGet(t, srv, "/v0/health", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestRunsRequireBearerToken(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doGet(t, srv, "/v0/runs", "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}
	res, _ = doGet(t, srv, "/v0/runs", "garbage")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", res.StatusCode)
	}
}

func TestRunsListing(t *testing.T) {
	srv := newTestServer(t)
	err := srv.History.AppendRun(context.Background(), tally.Result{
		RunID:     "run-1",
		ProjectID: "proj-1",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Total:     3,
		Completed: 2,
	})
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}

	res, data := doGet(t, srv, "/v0/runs", mintToken(t, "tester"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("runs status %d: %s", res.StatusCode, string(data))
	}
	var page history.Page
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal runs: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Total != 3 || page.Items[0].Completed != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestLatestRunNotFound(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doGet(t, srv, "/v0/projects/proj-1/latest", mintToken(t, "tester"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 with no runs, got %d", res.StatusCode)
	}
}

func TestMeReportsSubject(t *testing.T) {
	srv := newTestServer(t)
	res, data := doGet(t, srv, "/v0/me", mintToken(t, "tester"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var body map[string]string
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if body["subject"] != "tester" {
		t.Fatalf("subject = %q", body["subject"])
	}
}

func TestProjectsListing(t *testing.T) {
	srv := newTestServer(t)
	res, data := doGet(t, srv, "/v0/projects", mintToken(t, "tester"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("projects status %d: %s", res.StatusCode, string(data))
	}
	var projects []ProjectResponse
	if err := json.Unmarshal(data, &projects); err != nil {
		t.Fatalf("unmarshal projects: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "proj-1" || projects[0].Row != 2 {
		t.Fatalf("unexpected projects %+v", projects)
	}
}
