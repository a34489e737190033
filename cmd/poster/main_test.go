package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	path := filepath.Join(dir, "portrait.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return path
}

func TestCharactersCommand(t *testing.T) {
	out, _, err := runCLI(t, "characters")
	if err != nil {
		t.Fatalf("characters: %v", err)
	}
	for _, want := range []string{"zack", "Zack", "皮皮 (default)", "badou"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	out, _, err = runCLI(t, "characters", "--json")
	if err != nil {
		t.Fatalf("characters --json: %v", err)
	}
	var items []map[string]string
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("expected 5 characters, got %d", len(items))
	}
}

func TestNormalizeCommand(t *testing.T) {
	dir := t.TempDir()
	in := writePNG(t, dir, 800, 400)
	out := filepath.Join(dir, "out.jpg")

	stdout, _, err := runCLI(t, "normalize", "--in", in, "--out", out, "--max-side", "200")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !strings.Contains(stdout, "800x400 -> 200x100") {
		t.Fatalf("unexpected output: %s", stdout)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
	if cfg.Width != 200 || cfg.Height != 100 {
		t.Fatalf("output %dx%d, want 200x100", cfg.Width, cfg.Height)
	}
}

func TestNormalizeRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(in, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, _, err := runCLI(t, "normalize", "--in", in, "--out", filepath.Join(dir, "out.jpg"))
	if err == nil || !strings.Contains(err.Error(), "not an image") {
		t.Fatalf("expected not-an-image error, got %v", err)
	}
}

func difyStub(t *testing.T, workflow map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer cli-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/files/upload":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "file-9"})
		case "/workflows/run":
			_ = json.NewEncoder(w).Encode(map[string]any{"data": workflow})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateCommand(t *testing.T) {
	srv := difyStub(t, map[string]any{
		"status":  "succeeded",
		"outputs": map[string]any{"poster_url": "https://cdn.example.com/cli.png"},
	})
	t.Setenv("DIFY_API_KEY", "cli-key")
	t.Setenv("DIFY_BASE_URL", srv.URL)
	in := writePNG(t, t.TempDir(), 300, 300)

	stdout, stderr, err := runCLI(t, "generate", "--image", in, "--character", "tangtang")
	if err != nil {
		t.Fatalf("generate: %v (stderr %s)", err, stderr)
	}
	if strings.TrimSpace(stdout) != "https://cdn.example.com/cli.png" {
		t.Fatalf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "generating...") {
		t.Fatalf("expected progress on stderr, got %q", stderr)
	}
}

func TestGenerateWorkflowFailure(t *testing.T) {
	srv := difyStub(t, map[string]any{"status": "failed", "error": "no face found"})
	t.Setenv("DIFY_API_KEY", "cli-key")
	t.Setenv("DIFY_BASE_URL", srv.URL)
	in := writePNG(t, t.TempDir(), 64, 64)

	_, _, err := runCLI(t, "generate", "--image", in)
	if err == nil || err.Error() != "no face found" {
		t.Fatalf("expected remote failure message, got %v", err)
	}
}

func TestGenerateRejectsUnknownCharacter(t *testing.T) {
	_, _, err := runCLI(t, "generate", "--image", "missing.png", "--character", "nobody")
	if err == nil {
		t.Fatalf("expected an error for an unknown character")
	}
}
