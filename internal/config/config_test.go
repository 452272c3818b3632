package config

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CRR_DATA_DIR", "CRR_PORT", "CRR_ADMIN_TOKEN", "CRR_JWT_SECRET",
		"CRR_SMTP_HOST", "CRR_SMTP_USER", "CRR_SMTP_PASSWORD", "CRR_SMTP_FROM", "CRR_SMTP_PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadRejectsShortJWTSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("CRR_JWT_SECRET", "too-short")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject a JWT secret shorter than 32 bytes")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CRR_JWT_SECRET", "this-secret-is-exactly-32-bytes!")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want default %q", cfg.DataDir, "./data")
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Port)
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("SMTP.Port = %d, want default 587", cfg.SMTP.Port)
	}
	if cfg.SMTP.From != "no-reply@localhost" {
		t.Errorf("SMTP.From = %q, want default", cfg.SMTP.From)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CRR_JWT_SECRET", "this-secret-is-exactly-32-bytes!")
	t.Setenv("CRR_DATA_DIR", "/srv/crr")
	t.Setenv("CRR_PORT", "9090")
	t.Setenv("CRR_ADMIN_TOKEN", "s3cr3t")
	t.Setenv("CRR_SMTP_HOST", "smtp.example.com")
	t.Setenv("CRR_SMTP_PORT", "2525")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/srv/crr" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "/srv/crr")
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.AdminToken != "s3cr3t" {
		t.Errorf("AdminToken = %q, want %q", cfg.AdminToken, "s3cr3t")
	}
	if cfg.SMTP.Port != 2525 {
		t.Errorf("SMTP.Port = %d, want 2525", cfg.SMTP.Port)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("CRR_JWT_SECRET", "this-secret-is-exactly-32-bytes!")
	t.Setenv("CRR_PORT", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject a non-numeric CRR_PORT")
	}
}
