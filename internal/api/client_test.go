package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/pkg/core"
)

func newClient(url, key string) *Client {
	return New(config.APIConfig{Enabled: true, URL: url, Key: key})
}

func TestNew(t *testing.T) {
	c := newClient("http://localhost:5000", "secret123")

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected baseURL=http://localhost:5000, got %s", c.baseURL)
	}
	if c.apiKey != "secret123" {
		t.Errorf("expected apiKey=secret123, got %s", c.apiKey)
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := newClient("http://localhost:5000/", "secret")
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			t.Errorf("expected path /healthcheck, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newClient(server.URL, "")
	if err := c.Healthcheck(); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	c := newClient("http://localhost:59999", "") // unlikely to be listening
	if err := c.Healthcheck(); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newClient(server.URL, "")
	if err := c.Healthcheck(); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestUpload_Success(t *testing.T) {
	var receivedSecret, receivedFilename, receivedMatchName string
	var receivedDuration, receivedWinner, receivedReason string
	var receivedFileContent []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/replays/add" {
			t.Errorf("expected path /api/v1/replays/add, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}

		receivedSecret = r.FormValue("secret")
		receivedFilename = r.FormValue("filename")
		receivedMatchName = r.FormValue("matchName")
		receivedDuration = r.FormValue("matchDuration")
		receivedWinner = r.FormValue("winner")
		receivedReason = r.FormValue("reason")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("failed to get file: %v", err)
		}
		defer file.Close()

		receivedFileContent = make([]byte, 1024)
		n, _ := file.Read(receivedFileContent)
		receivedFileContent = receivedFileContent[:n]

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	testFile := tmpDir + "/skirmish_20260314_183000.json.gz"
	if err := os.WriteFile(testFile, []byte("test content"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	c := newClient(server.URL, "mysecret")
	meta := UploadMetadata{
		MatchName:       "Skirmish",
		DurationSeconds: 1800.5,
		Winner:          core.FactionUS,
		Reason:          core.ReasonTicketsDepleted,
	}

	if err := c.Upload(testFile, meta); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if receivedSecret != "mysecret" {
		t.Errorf("expected secret=mysecret, got %s", receivedSecret)
	}
	if receivedFilename != "skirmish_20260314_183000.json.gz" {
		t.Errorf("expected filename=skirmish_20260314_183000.json.gz, got %s", receivedFilename)
	}
	if receivedMatchName != "Skirmish" {
		t.Errorf("expected matchName=Skirmish, got %s", receivedMatchName)
	}
	if receivedDuration != "1800.500000" {
		t.Errorf("expected matchDuration=1800.500000, got %s", receivedDuration)
	}
	if receivedWinner != "US" {
		t.Errorf("expected winner=US, got %s", receivedWinner)
	}
	if receivedReason != "TICKETS_DEPLETED" {
		t.Errorf("expected reason=TICKETS_DEPLETED, got %s", receivedReason)
	}
	if string(receivedFileContent) != "test content" {
		t.Errorf("expected file content 'test content', got '%s'", string(receivedFileContent))
	}
}

func TestUpload_FileNotFound(t *testing.T) {
	c := newClient("http://localhost:5000", "secret")
	if err := c.Upload("/nonexistent/file.json.gz", UploadMetadata{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestUpload_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	testFile := tmpDir + "/test.json.gz"
	_ = os.WriteFile(testFile, []byte("content"), 0644)

	c := newClient(server.URL, "wrong-secret")
	if err := c.Upload(testFile, UploadMetadata{}); err == nil {
		t.Error("expected error for 403 response")
	}
}
