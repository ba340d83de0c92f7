package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/manash/moodboard/internal/provider"
	"github.com/manash/moodboard/pkg/models"
)

// mockProvider implements provider.Provider for testing.
type mockProvider struct {
	mu        sync.Mutex
	base      string
	reasoning string
	err       error
	generates []*models.GenerateRequest
	edits     []*models.EditRequest
	n         int
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) FileURL(path string) string {
	return m.base + "/gradio_api/file=" + models.Basename(path)
}

func (m *mockProvider) result() (*models.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.n++
	path := fmt.Sprintf("/tmp/gradio/img%d.png", m.n)
	return &models.Result{
		Image:     models.ImageRef{URL: m.FileURL(path), Path: path},
		Reasoning: m.reasoning,
	}, nil
}

func (m *mockProvider) Generate(_ context.Context, req *models.GenerateRequest) (*models.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generates = append(m.generates, req)
	return m.result()
}

func (m *mockProvider) Edit(_ context.Context, req *models.EditRequest) (*models.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, req)
	return m.result()
}

// resetFlags resets all global flags to their default values.
func resetFlags() {
	flagConfig = ""
	flagSave = false
	flagOutput = ""
	flagRegion = ""
	flagColumns = 0
}

type testApp struct {
	app      *App
	out      *bytes.Buffer
	errOut   *bytes.Buffer
	provider *mockProvider
	provCfg  *provider.Config
}

func newTestApp(t *testing.T, in string) *testApp {
	t.Helper()
	resetFlags()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	ta := &testApp{
		out:      &bytes.Buffer{},
		errOut:   &bytes.Buffer{},
		provider: &mockProvider{base: "http://127.0.0.1:7860"},
	}
	ta.app = &App{
		In:  strings.NewReader(in),
		Out: ta.out,
		Err: ta.errOut,
		NewProvider: func(cfg *provider.Config) (provider.Provider, error) {
			ta.provCfg = cfg
			return ta.provider, nil
		},
		CanDisplay: func(io.Writer) bool { return false },
		Now:        func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) },
	}
	return ta
}

func (ta *testApp) run(args ...string) error {
	cmd := newRootCmd(ta.app)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestGenerate(t *testing.T) {
	ta := newTestApp(t, "")
	ta.provider.reasoning = "**Palette**\n\nEarth tones.\n\n**Fabrics**\n\nLinen and wool."

	if err := ta.run("generate", "sustainable luxury dress collection"); err != nil {
		t.Fatalf("generate error = %v", err)
	}

	if len(ta.provider.generates) != 1 {
		t.Fatalf("generate calls = %d", len(ta.provider.generates))
	}
	req := ta.provider.generates[0]
	if req.Prompt != "sustainable luxury dress collection" || req.Model != models.ModelGemini3Pro || !req.IncludeReasoning {
		t.Errorf("request = %+v", req)
	}

	out := ta.out.String()
	for _, want := range []string{
		"Generating with " + models.ModelGemini3Pro,
		"Image: http://127.0.0.1:7860/gradio_api/file=img1.png",
		"Path: /tmp/gradio/img1.png",
		"## Palette",
		"Earth tones.",
		"## Fabrics",
		"Done!",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerate_Flags(t *testing.T) {
	ta := newTestApp(t, "")

	err := ta.run("generate", "--model", models.ModelGemini25Flash, "--reasoning=false",
		"--base-url", "http://gradio.internal:7860/", "--api-key", "sk-test", "--timeout", "30s", "linen")
	if err != nil {
		t.Fatalf("generate error = %v", err)
	}

	req := ta.provider.generates[0]
	if req.Model != models.ModelGemini25Flash || req.IncludeReasoning {
		t.Errorf("request = %+v", req)
	}
	if ta.provCfg.BaseURL != "http://gradio.internal:7860" || ta.provCfg.APIKey != "sk-test" || ta.provCfg.Timeout != 30*time.Second {
		t.Errorf("provider config = %+v", ta.provCfg)
	}
}

func TestGenerate_EnvConfig(t *testing.T) {
	ta := newTestApp(t, "")
	t.Setenv("MOODBOARD_MODEL", models.ModelGemini25Flash)

	if err := ta.run("generate", "linen"); err != nil {
		t.Fatalf("generate error = %v", err)
	}
	if got := ta.provider.generates[0].Model; got != models.ModelGemini25Flash {
		t.Errorf("model = %q", got)
	}
}

func TestGenerate_ConfigFile(t *testing.T) {
	ta := newTestApp(t, "")
	path := filepath.Join(t.TempDir(), "moodboard.yaml")
	if err := os.WriteFile(path, []byte("model: "+models.ModelGemini25Flash+"\nreasoning: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ta.run("generate", "--config", path, "linen"); err != nil {
		t.Fatalf("generate error = %v", err)
	}
	req := ta.provider.generates[0]
	if req.Model != models.ModelGemini25Flash || req.IncludeReasoning {
		t.Errorf("request = %+v", req)
	}
}

func TestGenerate_Save(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(png)
	}))
	defer backend.Close()

	ta := newTestApp(t, "")
	ta.provider.base = backend.URL
	dest := filepath.Join(t.TempDir(), "out", "board.png")

	if err := ta.run("generate", "--base-url", backend.URL, "-o", dest, "linen"); err != nil {
		t.Fatalf("generate error = %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("saved file: %v", err)
	}
	if !bytes.Equal(data, png) {
		t.Errorf("saved %q", data)
	}
	if !strings.Contains(ta.out.String(), "Saved: "+dest) {
		t.Errorf("output = %s", ta.out.String())
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		provErr error
		want    string
	}{
		{
			name: "missing prompt",
			args: []string{"generate"},
			want: "accepts 1 arg",
		},
		{
			name: "blank prompt",
			args: []string{"generate", "   "},
			want: "prompt cannot be empty",
		},
		{
			name: "unknown model",
			args: []string{"generate", "--model", "dall-e-3", "linen"},
			want: "unknown model",
		},
		{
			name: "bad base url",
			args: []string{"generate", "--base-url", "ftp://example.com", "linen"},
			want: "http or https",
		},
		{
			name:    "backend failure",
			args:    []string{"generate", "linen"},
			provErr: &provider.RemoteError{Op: "generate", StatusCode: 500, Message: "quota exceeded"},
			want:    "generation failed: API Error: 500 - quota exceeded",
		},
		{
			name: "missing explicit config",
			args: []string{"generate", "--config", "/nonexistent/moodboard.yaml", "linen"},
			want: "read config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, "")
			ta.provider.err = tt.provErr

			err := ta.run(tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestEdit(t *testing.T) {
	ta := newTestApp(t, "")

	if err := ta.run("edit", "/tmp/gradio/img1.png", "make the sleeves red", "--region", "340,260,120,80"); err != nil {
		t.Fatalf("edit error = %v", err)
	}

	if len(ta.provider.edits) != 1 {
		t.Fatalf("edit calls = %d", len(ta.provider.edits))
	}
	req := ta.provider.edits[0]
	want := models.Region{X1: 120, Y1: 80, X2: 340, Y2: 260}
	if req.ImagePath != "/tmp/gradio/img1.png" || req.Region == nil || *req.Region != want {
		t.Errorf("request = %+v region = %v", req, req.Region)
	}
	if !strings.Contains(ta.out.String(), "Editing region (120, 80) to (340, 260) of img1.png") {
		t.Errorf("output = %s", ta.out.String())
	}
}

func TestEdit_WholeImage(t *testing.T) {
	ta := newTestApp(t, "")

	if err := ta.run("edit", "img1.png", "warmer light"); err != nil {
		t.Fatalf("edit error = %v", err)
	}
	if ta.provider.edits[0].Region != nil {
		t.Error("region sent without --region")
	}
	if !strings.Contains(ta.out.String(), "Editing entire image of img1.png") {
		t.Errorf("output = %s", ta.out.String())
	}
}

func TestEdit_InvalidRegion(t *testing.T) {
	for _, region := range []string{"1,2,3", "a,b,c,d", "10,10,10,50"} {
		ta := newTestApp(t, "")
		err := ta.run("edit", "img1.png", "red", "--region", region)
		if !errors.Is(err, models.ErrInvalidRegion) {
			t.Errorf("region %q: error = %v", region, err)
		}
		if len(ta.provider.edits) != 0 {
			t.Errorf("region %q reached the backend", region)
		}
	}
}

func TestModelsCmd(t *testing.T) {
	ta := newTestApp(t, "")

	if err := ta.run("models", "-m", models.ModelGemini25Flash); err != nil {
		t.Fatalf("models error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(ta.out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	for _, line := range lines {
		current := strings.HasPrefix(line, "* ")
		if strings.Contains(line, models.ModelGemini25Flash) != current {
			t.Errorf("marker wrong on %q", line)
		}
	}
	if !strings.Contains(ta.out.String(), "Gemini 3 Pro") || !strings.Contains(ta.out.String(), "reasoning") {
		t.Errorf("output = %s", ta.out.String())
	}
}

func TestInteractive(t *testing.T) {
	ta := newTestApp(t, "linen summer capsule\nsubmit\nmake it blue\nsubmit\nhistory\nquit\n")

	if err := ta.run("interactive", "--interval", "50ms"); err != nil {
		t.Fatalf("interactive error = %v", err)
	}

	if len(ta.provider.generates) != 1 || len(ta.provider.edits) != 1 {
		t.Fatalf("generates = %d, edits = %d", len(ta.provider.generates), len(ta.provider.edits))
	}
	if ta.provider.edits[0].ImagePath != "img1.png" {
		t.Errorf("edit target = %q", ta.provider.edits[0].ImagePath)
	}

	out := ta.out.String()
	for _, want := range []string{"moodboard interactive mode", "3 versions in history", "Goodbye!"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ta := newTestApp(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := newRootCmd(ta.app)
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestVersion(t *testing.T) {
	ta := newTestApp(t, "")
	if err := ta.run("--version"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ta.out.String(), "dev (commit: none)") {
		t.Errorf("output = %s", ta.out.String())
	}
}
