package gradio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manash/moodboard/internal/provider"
	"github.com/manash/moodboard/pkg/models"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	p, err := New(&provider.Config{BaseURL: baseURL, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

// capture records the decoded data array of the last request.
type capture struct {
	path string
	auth string
	data []any
}

func fakeBackend(t *testing.T, status int, body string, c *capture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("wrong content type %q", r.Header.Get("Content-Type"))
		}
		if c != nil {
			c.path = r.URL.Path
			c.auth = r.Header.Get("Authorization")
			var req apiRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			c.data = req.Data
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *provider.Config
		wantErr error
	}{
		{"valid config", &provider.Config{BaseURL: DefaultBaseURL}, nil},
		{"trailing slash", &provider.Config{BaseURL: "http://host:7860/"}, nil},
		{"custom timeout", &provider.Config{BaseURL: DefaultBaseURL, Timeout: 5 * time.Second}, nil},
		{"empty base URL", &provider.Config{}, provider.ErrBaseURLRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v, want nil", err)
			}
			if p.Name() != "gradio" {
				t.Errorf("Name() = %q, want gradio", p.Name())
			}
		})
	}
}

func TestProvider_FileURL(t *testing.T) {
	p := newTestProvider(t, "http://127.0.0.1:7860/")

	tests := []struct {
		path string
		want string
	}{
		{"out.png", "http://127.0.0.1:7860/gradio_api/file=out.png"},
		{"/tmp/gradio/abc/out.png", "http://127.0.0.1:7860/gradio_api/file=out.png"},
		{`C:\outputs\out.png`, "http://127.0.0.1:7860/gradio_api/file=out.png"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := p.FileURL(tt.path); got != tt.want {
				t.Errorf("FileURL(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestProvider_Generate_Success(t *testing.T) {
	var c capture
	srv := fakeBackend(t, http.StatusOK, `{"data":["outputs/gen_1.png","**Plan**\n\nA red dress."]}`, &c)

	p, err := New(&provider.Config{BaseURL: srv.URL, APIKey: "hf-key", GenerateTemplate: "tmpl", Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := p.Generate(context.Background(), models.NewGenerateRequest("red dress", models.ModelGemini3Pro))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if c.path != generateEndpoint {
		t.Errorf("request path = %q, want %q", c.path, generateEndpoint)
	}
	if c.auth != "Bearer hf-key" {
		t.Errorf("Authorization = %q, want bearer key", c.auth)
	}
	want := []any{"red dress", models.ModelGemini3Pro, "tmpl", true}
	if len(c.data) != len(want) {
		t.Fatalf("data = %v, want %v", c.data, want)
	}
	for i := range want {
		if c.data[i] != want[i] {
			t.Errorf("data[%d] = %v, want %v", i, c.data[i], want[i])
		}
	}

	if res.Image.Path != "gen_1.png" {
		t.Errorf("Image.Path = %q, want gen_1.png", res.Image.Path)
	}
	if res.Image.URL != srv.URL+"/gradio_api/file=gen_1.png" {
		t.Errorf("Image.URL = %q", res.Image.URL)
	}
	if res.Reasoning != "**Plan**\n\nA red dress." {
		t.Errorf("Reasoning = %q", res.Reasoning)
	}
}

func TestProvider_Generate_NoAuthHeaderWithoutKey(t *testing.T) {
	var c capture
	srv := fakeBackend(t, http.StatusOK, `{"data":["a.png"]}`, &c)
	p := newTestProvider(t, srv.URL)

	if _, err := p.Generate(context.Background(), models.NewGenerateRequest("x", models.ModelGemini3Pro)); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if c.auth != "" {
		t.Errorf("Authorization = %q, want empty", c.auth)
	}
}

func TestProvider_Generate_EmptyPromptNoRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	_, err := p.Generate(context.Background(), models.NewGenerateRequest("  ", models.ModelGemini3Pro))
	if !errors.Is(err, models.ErrEmptyPrompt) {
		t.Errorf("Generate() error = %v, want ErrEmptyPrompt", err)
	}
	if called {
		t.Error("backend should not be called for an empty prompt")
	}
}

func TestProvider_Edit_Region(t *testing.T) {
	var c capture
	srv := fakeBackend(t, http.StatusOK, `{"data":["edit_2.png",null]}`, &c)
	p := newTestProvider(t, srv.URL)

	req := models.NewEditRequest("gen_1.png", "make it blue", models.ModelGemini25Flash)
	req.Region = &models.Region{X1: 10, Y1: 10, X2: 50, Y2: 50}

	res, err := p.Edit(context.Background(), req)
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	if c.path != editEndpoint {
		t.Errorf("request path = %q, want %q", c.path, editEndpoint)
	}
	want := []any{nil, "gen_1.png", 10.0, 10.0, 50.0, 50.0, "make it blue", models.ModelGemini25Flash, "", true}
	if len(c.data) != len(want) {
		t.Fatalf("data = %v, want %v", c.data, want)
	}
	for i := range want {
		if c.data[i] != want[i] {
			t.Errorf("data[%d] = %v, want %v", i, c.data[i], want[i])
		}
	}
	if res.Image.Path != "edit_2.png" {
		t.Errorf("Image.Path = %q, want edit_2.png", res.Image.Path)
	}
	if res.Reasoning != "" {
		t.Errorf("Reasoning = %q, want empty for null", res.Reasoning)
	}
}

func TestProvider_Edit_WholeImageSendsNulls(t *testing.T) {
	var c capture
	srv := fakeBackend(t, http.StatusOK, `{"data":["edit_3.png"]}`, &c)
	p, err := New(&provider.Config{BaseURL: srv.URL, EditTemplate: "edit-tmpl", Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	req := models.NewEditRequest("gen_1.png", "add belt", models.ModelGemini3Pro)
	req.IncludeReasoning = false
	if _, err := p.Edit(context.Background(), req); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	for i := 2; i <= 5; i++ {
		if c.data[i] != nil {
			t.Errorf("data[%d] = %v, want null", i, c.data[i])
		}
	}
	if c.data[8] != "edit-tmpl" {
		t.Errorf("template = %v, want edit-tmpl", c.data[8])
	}
	if c.data[9] != false {
		t.Errorf("includeReasoning = %v, want false", c.data[9])
	}
}

func TestProvider_ImageShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantPath string
		wantURL  string
	}{
		{
			name:     "bare path",
			body:     `{"data":["/tmp/gradio/x/a.png"]}`,
			wantPath: "a.png",
			wantURL:  "{base}/gradio_api/file=a.png",
		},
		{
			name:     "url string",
			body:     `{"data":["http://cdn.example/gradio_api/file=b.png"]}`,
			wantPath: "b.png",
			wantURL:  "http://cdn.example/gradio_api/file=b.png",
		},
		{
			name:     "object with url and path",
			body:     `{"data":[{"url":"http://cdn.example/c.png","path":"/tmp/c.png"}]}`,
			wantPath: "c.png",
			wantURL:  "http://cdn.example/c.png",
		},
		{
			name:     "object with path only",
			body:     `{"data":[{"path":"/tmp/d.png","url":null}]}`,
			wantPath: "d.png",
			wantURL:  "{base}/gradio_api/file=d.png",
		},
		{
			name:     "object with url only",
			body:     `{"data":[{"url":"http://cdn.example/gradio_api/file=e.png"}]}`,
			wantPath: "e.png",
			wantURL:  "http://cdn.example/gradio_api/file=e.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeBackend(t, http.StatusOK, tt.body, nil)
			p := newTestProvider(t, srv.URL)

			res, err := p.Generate(context.Background(), models.NewGenerateRequest("x", models.ModelGemini3Pro))
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			wantURL := strings.ReplaceAll(tt.wantURL, "{base}", srv.URL)
			if res.Image.Path != tt.wantPath {
				t.Errorf("Image.Path = %q, want %q", res.Image.Path, tt.wantPath)
			}
			if res.Image.URL != wantURL {
				t.Errorf("Image.URL = %q, want %q", res.Image.URL, wantURL)
			}
		})
	}
}

func TestProvider_RemoteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error field", http.StatusInternalServerError, `{"error":"quota exceeded"}`, "API Error: 500 - quota exceeded"},
		{"detail field", http.StatusUnprocessableEntity, `{"detail":"bad region"}`, "API Error: 422 - bad region"},
		{"error wins over detail", http.StatusBadRequest, `{"error":"e","detail":"d"}`, "API Error: 400 - e"},
		{"non-JSON body", http.StatusBadGateway, `<html>oops</html>`, "API Error: 502 - Bad Gateway"},
		{"empty JSON", http.StatusServiceUnavailable, `{}`, "API Error: 503 - Service Unavailable"},
		{"error payload on 200", http.StatusOK, `{"error":"model overloaded"}`, "API Error: 200 - model overloaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeBackend(t, tt.status, tt.body, nil)
			p := newTestProvider(t, srv.URL)

			_, err := p.Generate(context.Background(), models.NewGenerateRequest("x", models.ModelGemini3Pro))
			if !provider.IsRemote(err) {
				t.Fatalf("Generate() error = %v, want RemoteError", err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
			if !errors.Is(err, provider.ErrGenerateFailed) {
				t.Error("RemoteError from generate should match ErrGenerateFailed")
			}
		})
	}
}

func TestProvider_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not JSON", `not json`},
		{"missing data", `{}`},
		{"empty data", `{"data":[]}`},
		{"null image", `{"data":[null]}`},
		{"numeric image", `{"data":[42]}`},
		{"empty object", `{"data":[{}]}`},
		{"non-string reasoning", `{"data":["a.png",{"text":"x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeBackend(t, http.StatusOK, tt.body, nil)
			p := newTestProvider(t, srv.URL)

			_, err := p.Edit(context.Background(), models.NewEditRequest("a.png", "x", models.ModelGemini3Pro))
			if !provider.IsMalformed(err) {
				t.Errorf("Edit() error = %v, want MalformedResponseError", err)
			}
		})
	}
}

func TestProvider_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	p := newTestProvider(t, baseURL)
	_, err := p.Generate(context.Background(), models.NewGenerateRequest("x", models.ModelGemini3Pro))
	if !provider.IsNetwork(err) {
		t.Errorf("Generate() error = %v, want NetworkError", err)
	}
}

func TestProvider_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p, err := New(&provider.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = p.Generate(context.Background(), models.NewGenerateRequest("x", models.ModelGemini3Pro))
	if !provider.IsNetwork(err) {
		t.Errorf("Generate() error = %v, want NetworkError on timeout", err)
	}
}

func TestProvider_VerboseLogsRedactAuth(t *testing.T) {
	srv := fakeBackend(t, http.StatusOK, `{"data":["a.png"]}`, nil)

	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)

	p, err := New(&provider.Config{BaseURL: srv.URL, APIKey: "secret-key", Verbose: true, Logger: log})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := p.Generate(context.Background(), models.NewGenerateRequest("x", models.ModelGemini3Pro)); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "secret-key") {
		t.Error("verbose log leaked the API key")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("verbose log should show the redacted authorization header")
	}
	if !strings.Contains(out, "request body") {
		t.Error("verbose log should include the request body")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789... [truncated]" {
		t.Errorf("truncate() = %q", got)
	}
}
