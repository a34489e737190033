package infra

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresAPIKey(t *testing.T) {
	t.Setenv("DIFY_API_KEY", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when DIFY_API_KEY is missing")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DIFY_API_KEY", "app-test")
	t.Setenv("DIFY_BASE_URL", "")
	t.Setenv("IMAGE_MAX_SIDE", "")
	t.Setenv("IMAGE_JPEG_QUALITY", "")
	t.Setenv("UPLOAD_TIMEOUT_SECONDS", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DifyBaseURL != "https://api.dify.ai/v1" {
		t.Fatalf("DifyBaseURL mismatch: got %q", cfg.DifyBaseURL)
	}
	if cfg.ImageMaxSide != 1200 || cfg.ImageJPEGQuality != 85 {
		t.Fatalf("image defaults mismatch: side=%d quality=%d", cfg.ImageMaxSide, cfg.ImageJPEGQuality)
	}
	if cfg.UploadTimeout != 60*time.Second {
		t.Fatalf("UploadTimeout mismatch: got %s", cfg.UploadTimeout)
	}
	if cfg.DifyCategoryField != "ip_name" || cfg.DifyImageField != "user_image" || cfg.DifyOutputField != "poster_url" {
		t.Fatalf("workflow field defaults mismatch: %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("CORSAllowedOrigins should be empty: %#v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DIFY_API_KEY", "app-test")
	t.Setenv("DIFY_BASE_URL", "https://dify.example.com/v1/")
	t.Setenv("IMAGE_MAX_SIDE", "1080")
	t.Setenv("IMAGE_JPEG_QUALITY", "80")
	t.Setenv("GENERATE_TIMEOUT_SECONDS", "90")
	t.Setenv("MAX_UPLOAD_MB", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DifyBaseURL != "https://dify.example.com/v1" {
		t.Fatalf("DifyBaseURL mismatch: got %q", cfg.DifyBaseURL)
	}
	if cfg.ImageMaxSide != 1080 || cfg.ImageJPEGQuality != 80 {
		t.Fatalf("image overrides mismatch: side=%d quality=%d", cfg.ImageMaxSide, cfg.ImageJPEGQuality)
	}
	if cfg.GenerateTimeout != 90*time.Second {
		t.Fatalf("GenerateTimeout mismatch: got %s", cfg.GenerateTimeout)
	}
	if cfg.MaxUploadBytes != 5<<20 {
		t.Fatalf("MaxUploadBytes mismatch: got %d", cfg.MaxUploadBytes)
	}
	expected := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.CORSAllowedOrigins) != len(expected) {
		t.Fatalf("CORSAllowedOrigins mismatch: got %#v want %#v", cfg.CORSAllowedOrigins, expected)
	}
	for i, origin := range expected {
		if cfg.CORSAllowedOrigins[i] != origin {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], origin)
		}
	}
}

func TestLoadConfigRejectsInvalidQuality(t *testing.T) {
	t.Setenv("DIFY_API_KEY", "app-test")
	t.Setenv("IMAGE_JPEG_QUALITY", "101")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for out of range quality")
	}
}
